package catalog

// Built-in catalog entries. These ship with the engine so a fresh deployment
// detects the well-known dangerous combinations before any custom rows exist.
// Entries are authored in the direction the clinical source states them; the
// catalog is not symmetrized at load.

var builtinInteractions = []DrugInteraction{
	{
		DrugName:               "warfarin",
		InteractingDrug:        "aspirin",
		Severity:               SeverityMajor,
		Description:            "Increased risk of serious bleeding",
		Mechanism:              "Additive anticoagulant and antiplatelet effects",
		ClinicalRecommendation: "Avoid combination unless specifically directed; monitor INR closely",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "warfarin",
		InteractingDrug:        "ibuprofen",
		Severity:               SeverityMajor,
		Description:            "Increased risk of gastrointestinal bleeding",
		Mechanism:              "NSAID platelet inhibition plus anticoagulation",
		ClinicalRecommendation: "Prefer acetaminophen for analgesia; monitor for bleeding",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "warfarin",
		InteractingDrug:        "amiodarone",
		Severity:               SeverityMajor,
		Description:            "Marked potentiation of anticoagulant effect",
		Mechanism:              "CYP2C9 inhibition reduces warfarin clearance",
		ClinicalRecommendation: "Reduce warfarin dose and recheck INR within one week",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "lisinopril",
		InteractingDrug:        "potassium chloride",
		Severity:               SeverityModerate,
		Description:            "Risk of hyperkalemia",
		Mechanism:              "ACE inhibition reduces renal potassium excretion",
		ClinicalRecommendation: "Monitor serum potassium; avoid routine supplementation",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "lisinopril",
		InteractingDrug:        "spironolactone",
		Severity:               SeverityMajor,
		Description:            "Severe hyperkalemia risk",
		Mechanism:              "Dual potassium-sparing effect",
		ClinicalRecommendation: "Check potassium and renal function before and after combining",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "phenelzine",
		InteractingDrug:        "sertraline",
		Severity:               SeverityContraindicated,
		Description:            "Risk of serotonin syndrome, potentially fatal",
		Mechanism:              "MAO inhibition combined with serotonin reuptake inhibition",
		ClinicalRecommendation: "Contraindicated; require a 14-day washout between agents",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "phenelzine",
		InteractingDrug:        "fluoxetine",
		Severity:               SeverityContraindicated,
		Description:            "Risk of serotonin syndrome, potentially fatal",
		Mechanism:              "MAO inhibition combined with serotonin reuptake inhibition",
		ClinicalRecommendation: "Contraindicated; fluoxetine requires a 5-week washout",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "simvastatin",
		InteractingDrug:        "clarithromycin",
		Severity:               SeverityMajor,
		Description:            "Elevated statin levels with rhabdomyolysis risk",
		Mechanism:              "CYP3A4 inhibition raises simvastatin exposure",
		ClinicalRecommendation: "Suspend statin during the antibiotic course",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "digoxin",
		InteractingDrug:        "furosemide",
		Severity:               SeverityModerate,
		Description:            "Hypokalemia increases digoxin toxicity",
		Mechanism:              "Loop diuretic potassium wasting sensitizes cardiac tissue",
		ClinicalRecommendation: "Monitor potassium and digoxin levels",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "metformin",
		InteractingDrug:        "contrast media",
		Severity:               SeverityModerate,
		Description:            "Risk of lactic acidosis after iodinated contrast",
		Mechanism:              "Contrast-induced renal impairment reduces metformin clearance",
		ClinicalRecommendation: "Hold metformin 48 hours after contrast administration",
		EvidenceLevel:          "probable",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "insulin",
		InteractingDrug:        "metformin",
		Severity:               SeverityMinor,
		Description:            "Additive glucose lowering",
		Mechanism:              "Complementary mechanisms, commonly co-prescribed",
		ClinicalRecommendation: "Routine glucose monitoring",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
	{
		DrugName:               "levothyroxine",
		InteractingDrug:        "calcium carbonate",
		Severity:               SeverityMinor,
		Description:            "Reduced levothyroxine absorption",
		Mechanism:              "Calcium binds levothyroxine in the gut",
		ClinicalRecommendation: "Separate doses by at least 4 hours",
		EvidenceLevel:          "established",
		Source:                 SourceBuiltin,
	},
}

var builtinFoodInteractions = []FoodInteraction{
	{DrugName: "warfarin", Food: "spinach", Effect: "Vitamin K antagonizes anticoagulation", AvoidanceRequired: false, Source: SourceBuiltin},
	{DrugName: "warfarin", Food: "kale", Effect: "Vitamin K antagonizes anticoagulation", AvoidanceRequired: false, Source: SourceBuiltin},
	{DrugName: "warfarin", Food: "broccoli", Effect: "Vitamin K antagonizes anticoagulation", AvoidanceRequired: false, Source: SourceBuiltin},
	{DrugName: "warfarin", Food: "brussels sprouts", Effect: "Vitamin K antagonizes anticoagulation", AvoidanceRequired: false, Source: SourceBuiltin},
	{DrugName: "warfarin", Food: "green tea", Effect: "Vitamin K content reduces INR", AvoidanceRequired: false, Source: SourceBuiltin},
	{DrugName: "warfarin", Food: "liver", Effect: "High vitamin K content reduces INR", AvoidanceRequired: false, Source: SourceBuiltin},
	{DrugName: "warfarin", Food: "cranberry", Effect: "Potentiates anticoagulant effect", AvoidanceRequired: false, Source: SourceBuiltin},
	{DrugName: "phenelzine", Food: "aged cheese", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "phenelzine", Food: "cured meat", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "phenelzine", Food: "red wine", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "phenelzine", Food: "soy sauce", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "phenelzine", Food: "sauerkraut", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "tranylcypromine", Food: "aged cheese", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "tranylcypromine", Food: "cured meat", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "tranylcypromine", Food: "red wine", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "isocarboxazid", Food: "aged cheese", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "selegiline", Food: "aged cheese", Effect: "Tyramine pressor crisis", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "tetracycline", Food: "milk", Effect: "Calcium chelation reduces absorption", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "tetracycline", Food: "dairy", Effect: "Calcium chelation reduces absorption", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "tetracycline", Food: "cheese", Effect: "Calcium chelation reduces absorption", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "tetracycline", Food: "yogurt", Effect: "Calcium chelation reduces absorption", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "tetracycline", Food: "calcium", Effect: "Chelation reduces absorption", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "tetracycline", Food: "iron", Effect: "Chelation reduces absorption", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "doxycycline", Food: "dairy", Effect: "Calcium chelation reduces absorption", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "digoxin", Food: "licorice", Effect: "Hypokalemia potentiates toxicity", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "digoxin", Food: "ginseng", Effect: "May raise digoxin levels", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "statin", Food: "grapefruit", Effect: "CYP3A4 inhibition raises statin levels", AvoidanceRequired: true, Source: SourceBuiltin},
	{DrugName: "metformin", Food: "alcohol", Effect: "Increased lactic acidosis risk", AvoidanceRequired: true, Source: SourceBuiltin},
}

var builtinCrossReactivities = []AllergenCrossReactivity{
	{
		Allergen:               "peanuts",
		CrossReactiveAllergens: []string{"tree nuts", "legumes", "lupin"},
		RiskLevel:              RiskHigh,
		Recommendation:         "Avoid tree nuts unless tolerance is established",
		Source:                 SourceBuiltin,
	},
	{
		Allergen:               "penicillin",
		CrossReactiveAllergens: []string{"cephalosporins", "amoxicillin", "ampicillin"},
		RiskLevel:              RiskMedium,
		Recommendation:         "Use cephalosporins with caution; consider allergy testing",
		Source:                 SourceBuiltin,
	},
	{
		Allergen:               "shellfish",
		CrossReactiveAllergens: []string{"iodine contrast", "crustaceans", "mollusks"},
		RiskLevel:              RiskHigh,
		Recommendation:         "Flag before imaging with iodinated contrast",
		Source:                 SourceBuiltin,
	},
	{
		Allergen:               "latex",
		CrossReactiveAllergens: []string{"banana", "avocado", "kiwi", "chestnut"},
		RiskLevel:              RiskMedium,
		Recommendation:         "Counsel on latex-fruit syndrome",
		Source:                 SourceBuiltin,
	},
	{
		Allergen:               "sulfa",
		CrossReactiveAllergens: []string{"sulfites", "sulfonamide antibiotics"},
		RiskLevel:              RiskLow,
		Recommendation:         "Sulfite sensitivity is uncommon but documented",
		Source:                 SourceBuiltin,
	},
	{
		Allergen:               "eggs",
		CrossReactiveAllergens: []string{"chicken", "influenza vaccine"},
		RiskLevel:              RiskLow,
		Recommendation:         "Most egg-allergic patients tolerate modern influenza vaccines",
		Source:                 SourceBuiltin,
	},
}
