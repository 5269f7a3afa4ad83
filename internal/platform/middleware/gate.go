package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/domain/oversight"
	"github.com/clinsafe/clinsafe/internal/platform/auth"
	"github.com/clinsafe/clinsafe/internal/platform/hipaa"
)

// disclaimerText is appended to outbound payloads that carry clinical
// content below the blocking threshold.
const disclaimerText = "This information is for general purposes only and is not a substitute for professional medical advice. Consult a qualified clinician before acting on it."

// gateBlockMessage is returned with every inbound rejection.
const gateBlockMessage = "This content contains clinical guidance that cannot be accepted. If this is a medical emergency, call 911."

// ---------------------------------------------------------------------------
// GateConfig
// ---------------------------------------------------------------------------

// GateConfig holds clinical content gate configuration.
type GateConfig struct {
	// SkipPaths are path prefixes the gate does not inspect. The safety
	// endpoints are skipped because clinical text is their payload, not a
	// leak: the scanner endpoint receives text to classify, and conflict or
	// emergency verdicts carry warnings the gate must not rewrap.
	SkipPaths []string
}

// DefaultGateConfig returns a GateConfig with the standard skip list.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/api/v1/oversight",
			"/api/v1/conflicts",
			"/api/v1/emergency",
			"/api/v1/audit",
		},
	}
}

// ContentScreener is the slice of the oversight service the gate depends on.
// This decouples the middleware from the concrete service so that tests can
// wire a repository-free instance. *oversight.Service implements it.
type ContentScreener interface {
	Scanner() *oversight.Scanner
	RecordBlock(ctx context.Context, alert oversight.ClinicalAlert, source string, actor hipaa.Actor) *oversight.StoredAlert
	RecordDisclaimer()
}

// gateBlockedResponse is the 403 body for rejected inbound content.
type gateBlockedResponse struct {
	Error         string                   `json:"error"`
	Code          string                   `json:"code"`
	Message       string                   `json:"message"`
	ClinicalAlert *oversight.ClinicalAlert `json:"clinical_alert"`
}

// gateWrappedResponse is the disclaimer envelope for outbound content.
type gateWrappedResponse struct {
	Data               interface{} `json:"data"`
	ClinicalDisclaimer string      `json:"clinical_disclaimer"`
}

// OversightGate returns middleware that screens API traffic through the
// clinical oversight scanner. Inbound bodies that classify CRITICAL are
// rejected with 403 before reaching the handler; successful JSON responses
// that classify MEDIUM or above are wrapped with a disclaimer. The scanner
// only classifies; enforcement lives here.
func OversightGate(cfg GateConfig, screener ContentScreener, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, prefix := range cfg.SkipPaths {
				if strings.HasPrefix(path, prefix) {
					return next(c)
				}
			}

			if alert := scanInbound(c, screener.Scanner(), logger); alert != nil {
				ctx := c.Request().Context()
				actor := hipaa.ActorFromRequest(
					auth.UserIDFromContext(ctx),
					auth.UserNameFromContext(ctx),
					auth.RolesFromContext(ctx),
				)
				screener.RecordBlock(ctx, *alert, "gate:"+path, actor)

				logger.Warn().
					Str("path", path).
					Str("severity", alert.Severity).
					Str("alert_type", alert.Type).
					Msg("inbound clinical content blocked")

				return c.JSON(http.StatusForbidden, gateBlockedResponse{
					Error:         "clinical_content_blocked",
					Code:          "CLINICAL_CONTENT_BLOCKED",
					Message:       gateBlockMessage,
					ClinicalAlert: alert,
				})
			}

			res := c.Response()
			origWriter := res.Writer
			buf := newBufferedResponseWriter(origWriter)
			res.Writer = buf

			if err := next(c); err != nil {
				res.Writer = origWriter
				return err
			}
			res.Writer = origWriter

			return flushWithDisclaimer(c, screener, buf, origWriter)
		}
	}
}

// scanInbound reads and restores the request body, then returns the first
// auto-blocking alert, or nil. Bodies that decode as JSON go through the
// structured walker; anything else is scanned as plain text.
func scanInbound(c echo.Context, scanner *oversight.Scanner, logger zerolog.Logger) *oversight.ClinicalAlert {
	req := c.Request()
	switch req.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil
	}
	if req.Body == nil {
		return nil
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		// An unreadable body never reaches a handler intact either; binding
		// will reject it downstream.
		logger.Warn().Err(err).Msg("failed to read request body for content scan")
		req.Body = io.NopCloser(bytes.NewReader(nil))
		return nil
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var alerts []oversight.ClinicalAlert
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err == nil {
		alerts = scanner.AnalyzeStructured(decoded)
	} else if a := scanner.Analyze(string(body)); a != nil {
		alerts = append(alerts, *a)
	}

	for i := range alerts {
		if alerts[i].AutoBlock {
			return &alerts[i]
		}
	}
	return nil
}

// flushWithDisclaimer inspects the buffered response and either flushes it
// unchanged or rewraps it with the clinical disclaimer.
func flushWithDisclaimer(c echo.Context, screener ContentScreener, buf *bufferedResponseWriter, orig http.ResponseWriter) error {
	body := buf.buf.Bytes()
	if buf.statusCode >= 400 || len(body) == 0 {
		return buf.flushTo()
	}
	ctype := c.Response().Header().Get(echo.HeaderContentType)
	if !strings.Contains(ctype, echo.MIMEApplicationJSON) {
		return buf.flushTo()
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return buf.flushTo()
	}

	if !needsDisclaimer(screener.Scanner().AnalyzeStructured(decoded)) {
		return buf.flushTo()
	}

	wrapped, err := json.Marshal(gateWrappedResponse{Data: decoded, ClinicalDisclaimer: disclaimerText})
	if err != nil {
		return buf.flushTo()
	}

	screener.RecordDisclaimer()
	orig.WriteHeader(buf.statusCode)
	_, werr := orig.Write(wrapped)
	return werr
}

// needsDisclaimer reports whether any alert reaches MEDIUM severity.
func needsDisclaimer(alerts []oversight.ClinicalAlert) bool {
	switch oversight.HighestSeverity(alerts) {
	case oversight.SeverityMedium, oversight.SeverityHigh, oversight.SeverityCritical:
		return true
	}
	return false
}
