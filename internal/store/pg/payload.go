package pg

import (
	"encoding/json"
	"fmt"

	"github.com/txplain/txplain/internal/models"
)

// marshalPayload serializes a fact's variant payload to JSONB. The variant is
// recovered on read from fact_type, since encoding/json erases Go's dynamic
// type information.
func marshalPayload(f *models.AtomicFact) ([]byte, error) {
	return json.Marshal(f.Payload)
}

func unmarshalPayload(factType models.FactType, raw []byte) (any, error) {
	switch factType {
	case models.FactTypePartyDefinition:
		var p models.PartyDefinitionPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case models.FactTypePartyMention:
		var p models.PartyMentionPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case models.FactTypeSponsorMention:
		var p models.SponsorMentionPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case models.FactTypeDealDate:
		var p models.DealDatePayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case models.FactTypeFinancingMention:
		var p models.FinancingMentionPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case models.FactTypeAdvisorMention:
		var p models.AdvisorMentionPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case models.FactTypeDealValue:
		var p models.DealValuePayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case models.FactTypeManual:
		var p models.ManualPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	default:
		return nil, fmt.Errorf("pg: unknown fact_type %q", factType)
	}
}

func marshalSponsorEvidence(e *models.SponsorEvidence) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	return json.Marshal(e)
}

func unmarshalSponsorEvidence(raw []byte) (*models.SponsorEvidence, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var e models.SponsorEvidence
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
