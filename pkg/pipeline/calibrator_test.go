package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kejora-ai/orchestrator/pkg/tools"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

func TestCalibrator_AttachesCorrectionWhenTriggerPatternMatchesKeyPoint(t *testing.T) {
	corrections := []types.KnownCorrection{
		{
			ID:              "freelance-visa",
			TriggerPatterns: []string{"freelance.*legally"},
			CorrectionText:  "Freelancing in Indonesia on a tourist visa is not permitted; a KITAS with the right sponsor is required.",
			SourceCitation:  "Immigration Law No. 6/2011",
			Severity:        types.SeverityCritical,
		},
	}
	c := NewCalibrator(corrections, nil, nil)

	artifact := types.ReasonerArtifact{
		KeyPoints: []string{"You can freelance legally in Indonesia on a tourist visa"},
	}

	result := c.Run("can I freelance legally in Indonesia", artifact)

	assert.Len(t, result.Corrections, 1)
	assert.Equal(t, types.SeverityCritical, result.Corrections[0].Severity)
	assert.Contains(t, result.Corrections[0].CorrectionText, "KITAS")
}

func TestDefaultKnownCorrections_FreelanceTouristVisaFires(t *testing.T) {
	c := NewCalibrator(DefaultKnownCorrections, nil, nil)

	artifact := types.ReasonerArtifact{
		KeyPoints: []string{"you can freelance on a tourist visa since clients are foreign"},
	}
	result := c.Run("can I freelance on a tourist visa in Bali", artifact)

	assert.NotEmpty(t, result.Corrections)
	assert.Equal(t, "freelance-tourist-visa", findCorrectionID(DefaultKnownCorrections, result.Corrections[0].CorrectionText))
}

func findCorrectionID(corrections []types.KnownCorrection, text string) string {
	for _, c := range corrections {
		if c.CorrectionText == text {
			return c.ID
		}
	}
	return ""
}

func TestCalibrator_NoMatchingTriggerAttachesNoCorrection(t *testing.T) {
	corrections := []types.KnownCorrection{
		{ID: "x", TriggerPatterns: []string{"unrelated topic"}, CorrectionText: "n/a", SourceCitation: "n/a", Severity: types.SeverityMedium},
	}
	c := NewCalibrator(corrections, nil, nil)

	artifact := types.ReasonerArtifact{KeyPoints: []string{"PT PMA minimum capital is 10 billion IDR"}}
	result := c.Run("what is the minimum capital for PT PMA", artifact)

	assert.Empty(t, result.Corrections)
}

func TestCalibrator_DetectsTopicAndAttachesInsight(t *testing.T) {
	c := NewCalibrator(nil, nil, nil)

	result := c.Run("how long does a KITAS visa take to process", types.ReasonerArtifact{})

	assert.NotEmpty(t, result.Insights)
	found := false
	for _, ins := range result.Insights {
		if ins.Topic == "immigration" {
			found = true
		}
	}
	assert.True(t, found, "expected an immigration insight for a KITAS/visa query")
}

func TestCalibrator_LooksUpPricingForDetectedTopic(t *testing.T) {
	catalog := tools.NewPricingCatalog([]types.PricingEntry{
		{ServiceID: "kitas-work", ServiceName: "KITAS Work Permit Sponsorship", Category: "immigration", MinPriceIDR: 8_000_000, MaxPriceIDR: 15_000_000, Unit: "per year"},
	})
	c := NewCalibrator(nil, catalog, nil)

	result := c.Run("how much does a KITAS work permit cost", types.ReasonerArtifact{})

	assert.Len(t, result.Services, 1)
	assert.Equal(t, "KITAS Work Permit Sponsorship", result.Services[0].ServiceName)
}

func TestCalibrator_PlainSubstringTriggerStillMatchesWhenNotValidRegex(t *testing.T) {
	corrections := []types.KnownCorrection{
		{ID: "x", TriggerPatterns: []string{"price range ["}, CorrectionText: "corrected", SourceCitation: "n/a", Severity: types.SeverityHigh},
	}
	c := NewCalibrator(corrections, nil, nil)

	artifact := types.ReasonerArtifact{Warnings: []string{"the price range [unclear] varies widely"}}
	result := c.Run("any query", artifact)

	assert.Len(t, result.Corrections, 1)
}
