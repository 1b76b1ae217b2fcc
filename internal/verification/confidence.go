package verification

import "math"

// Method reliability weights. Hybrid evidence outranks remote-sensing
// surveys, which outrank single-source field or mobile data.
var methodWeights = map[Method]float64{
	MethodHybrid:           60,
	MethodDroneSurvey:      50,
	MethodSatelliteImagery: 50,
	MethodFieldVisit:       40,
	MethodMobileData:       40,
}

const (
	evidenceItemWeight     = 10.0
	fullEvidenceBonus      = 10.0
	fullEvidenceThreshold  = 3
	complianceIssuePenalty = 15.0
)

// ComputeConfidence scores a verification record in [0,100]. It is a pure
// function of the record's method, evidence set, and compliance issues:
// identical input always yields the identical score.
func ComputeConfidence(record *VerificationRecord) float64 {
	score := methodWeights[record.Method]

	verified := 0
	for _, item := range record.EvidenceItems {
		if item.Verified {
			verified++
		}
	}
	counted := verified
	if counted > fullEvidenceThreshold {
		counted = fullEvidenceThreshold
	}
	score += float64(counted) * evidenceItemWeight
	if verified >= fullEvidenceThreshold {
		score += fullEvidenceBonus
	}

	score -= float64(len(record.Findings.ComplianceIssues)) * complianceIssuePenalty

	return math.Min(100, math.Max(0, score))
}

// RecommendCredits derives the credit recommendation from the verified
// findings: sequestration rate (tCO2e/ha/yr) x verified area (ha) x the
// monitoring period (years), with a conservative 20% uncertainty buffer
// withheld. Rounded to two decimals.
func RecommendCredits(findings Findings, periodYears float64) float64 {
	if periodYears <= 0 {
		periodYears = 1
	}
	gross := findings.CarbonSequestrationRate * findings.AreaVerified * periodYears
	net := gross * (1 - uncertaintyBuffer)
	return math.Round(net*100) / 100
}

// uncertaintyBuffer is the conservative share of calculated tonnage withheld
// from issuance.
const uncertaintyBuffer = 0.20
