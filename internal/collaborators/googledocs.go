package collaborators

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"

	"github.com/ocx-labs/plaid/internal/module"
)

// GoogleDocs implements read/append operations against Google Docs,
// grounded on original_source/runtime/plaid/src/apis/gcp/google_docs.rs,
// using the teacher's existing google.golang.org/api dependency (already
// pulled in for Spanner/Pub/Sub/Cloud Tasks) rather than a bespoke REST
// client.
type GoogleDocs struct {
	svc *docs.Service
}

// NewGoogleDocs constructs the Docs client from application-default
// credentials (the same credential chain Spanner/Pub/Sub use).
func NewGoogleDocs(ctx context.Context, credentialsFile string) (*GoogleDocs, error) {
	opts := []option.ClientOption{option.WithScopes(docs.DocumentsScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("collaborators: google docs service: %w", err)
	}
	return &GoogleDocs{svc: svc}, nil
}

func (g *GoogleDocs) Name() string { return "google_docs" }

func (g *GoogleDocs) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	switch operation {
	case "get_document_text":
		var p struct{ DocumentID string }
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := validIdentifier(p.DocumentID); err != nil {
			return "", err
		}
		doc, err := g.svc.Documents.Get(p.DocumentID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("collaborators: google docs get: %w", err)
		}
		text := extractText(doc)
		encoded, _ := json.Marshal(map[string]string{"text": text})
		return string(encoded), nil

	case "append_text":
		var p struct {
			DocumentID string `json:"document_id"`
			Text       string `json:"text"`
		}
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if !authorizedDestination(caller.AccessoryData, "google_docs_write", p.DocumentID) {
			return "", ErrNotAuthorized
		}
		req := &docs.BatchUpdateDocumentRequest{
			Requests: []*docs.Request{{
				InsertText: &docs.InsertTextRequest{
					EndOfSegmentLocation: &docs.EndOfSegmentLocation{},
					Text:                 p.Text,
				},
			}},
		}
		if _, err := g.svc.Documents.BatchUpdate(p.DocumentID, req).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("collaborators: google docs append: %w", err)
		}
		return `{"ok":true}`, nil

	default:
		return "", fmt.Errorf("%w: google_docs has no operation %q", ErrInvalidParams, operation)
	}
}

func extractText(doc *docs.Document) string {
	if doc.Body == nil {
		return ""
	}
	out := ""
	for _, elem := range doc.Body.Content {
		if elem.Paragraph == nil {
			continue
		}
		for _, pe := range elem.Paragraph.Elements {
			if pe.TextRun != nil {
				out += pe.TextRun.Content
			}
		}
	}
	return out
}
