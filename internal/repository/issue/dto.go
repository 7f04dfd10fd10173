package issue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	domissue "github.com/kailas-cloud/triage/internal/domain/issue"
	"github.com/kailas-cloud/triage/internal/domain/label"
)

// issueDoc is the JSON document stored at triage:issue:<id>.
type issueDoc struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Classification string    `json:"classification"`
	Status         string    `json:"status"`
	HasVector      string    `json:"has_vector"`
	Vector         []float32 `json:"vector,omitempty"`
	MetadataVector []float32 `json:"metadata_vector,omitempty"`
	CreatedAt      int64     `json:"created_at"`
	UpdatedAt      int64     `json:"updated_at"`
}

func toDoc(i *domissue.Issue) issueDoc {
	hasVector := "false"
	if i.HasVector() {
		hasVector = "true"
	}
	return issueDoc{
		ID:             i.ID(),
		Title:          i.Title(),
		Summary:        i.Summary(),
		Classification: i.Classification().String(),
		Status:         string(i.Status()),
		HasVector:      hasVector,
		Vector:         i.Vector(),
		MetadataVector: i.MetadataVector(),
		CreatedAt:      i.CreatedAt().UnixMilli(),
		UpdatedAt:      i.UpdatedAt().UnixMilli(),
	}
}

func (d issueDoc) toDomain() domissue.Issue {
	return domissue.Reconstruct(
		d.ID, d.Title, d.Summary, label.Label(d.Classification), domissue.Status(d.Status),
		d.Vector, d.MetadataVector,
		time.UnixMilli(d.CreatedAt).UTC(), time.UnixMilli(d.UpdatedAt).UTC(),
	)
}

// decodeDoc accepts both JSON.GET "$" output (a one-element array) and a bare object.
func decodeDoc(raw []byte) (issueDoc, error) {
	var d issueDoc
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var docs []issueDoc
		if err := json.Unmarshal(raw, &docs); err != nil {
			return d, fmt.Errorf("unmarshal issue: %w", err)
		}
		if len(docs) == 0 {
			return d, fmt.Errorf("unmarshal issue: empty result")
		}
		return docs[0], nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("unmarshal issue: %w", err)
	}
	return d, nil
}
