package export

import (
	"fmt"
)

// Service provides post export functionality
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Export renders a post, optionally with its comment tree, in the
// requested format. The caller loads the post and comments; this keeps
// the renderer free of storage concerns.
func (s *Service) Export(req Request, post Post, comments []Comment) (*Result, error) {
	if post.Title == "" && post.Content == "" {
		return nil, ErrContentUnavailable
	}

	data := TemplateData{
		Title:       post.Title,
		Excerpt:     post.Excerpt,
		ContentHTML: ContentToHTML(post.Content),
		Author:      post.Author,
		Tags:        post.Tags,
		UpdatedAt:   post.UpdatedAt,
	}
	if req.IncludeComments {
		data.Comments = comments
	}

	html, err := RenderPostHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, post.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
