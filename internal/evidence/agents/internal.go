package agents

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/novusai/novus/internal/evidence"
)

const internalExcerptLen = 800

// internalDoc is one internal knowledge record: a prior study, regulatory
// memo, or research note held in the organization's own document base.
type internalDoc struct {
	ID         string
	Type       string
	Confidence string
	Text       string
}

// Internal searches the organization's internal document base for records
// mentioning the drug and condition.
type Internal struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ evidence.Agent = (*Internal)(nil)

// NewInternal creates the internal knowledge agent over an open database
// handle.
func NewInternal(db *sql.DB, logger *slog.Logger) *Internal {
	return &Internal{db: db, logger: logger}
}

func (i *Internal) Name() string { return evidence.AgentInternal }

// Fetch matches documents whose text mentions the drug and, per pairing, one
// of the conditions. Documents are deduplicated by id across pairings.
func (i *Internal) Fetch(ctx context.Context, q evidence.Query) (string, error) {
	conditions := cleanConditions(q.Conditions)
	mode := resolveMode(q.Drug, conditions)
	if mode == modeNone {
		return "INTERNAL KNOWLEDGE SIGNALS\n\n" +
			"No drug or condition provided.\n" +
			"At least one must be specified.", nil
	}

	var pairs [][2]string
	switch mode {
	case modeDrugAndCondition:
		for _, cond := range conditions {
			pairs = append(pairs, [2]string{q.Drug, cond})
		}
	case modeDrugOnly:
		pairs = [][2]string{{q.Drug, ""}}
	case modeConditionOnly:
		for _, cond := range conditions {
			pairs = append(pairs, [2]string{"", cond})
		}
	}

	docs := map[string]internalDoc{}
	order := []string{}
	for _, pair := range pairs {
		matches, err := i.query(ctx, pair[0], pair[1])
		if err != nil {
			return "", err
		}
		for _, doc := range matches {
			if _, dup := docs[doc.ID]; dup {
				continue
			}
			docs[doc.ID] = doc
			order = append(order, doc.ID)
		}
	}

	if len(docs) == 0 {
		return fmt.Sprintf(
			"INTERNAL KNOWLEDGE SIGNALS\n\n"+
				"Query mode : %s\nDrug       : %s\nConditions : %s\n\n"+
				"No internal knowledge records matched.",
			mode, orNA(q.Drug), joinOrNA(conditions),
		), nil
	}

	var sb strings.Builder
	sb.WriteString("INTERNAL KNOWLEDGE SIGNALS\n\n")
	fmt.Fprintf(&sb, "Query mode : %s\n", mode)
	fmt.Fprintf(&sb, "Drug       : %s\n", orNA(q.Drug))
	fmt.Fprintf(&sb, "Conditions : %s\n\n", joinOrNA(conditions))
	fmt.Fprintf(&sb, "Total internal records : %d\n\n", len(docs))

	for idx, id := range order {
		doc := docs[id]
		excerpt := doc.Text
		if len(excerpt) > internalExcerptLen {
			excerpt = excerpt[:internalExcerptLen]
		}
		fmt.Fprintf(&sb, "%d. Document ID : %s\n", idx+1, doc.ID)
		fmt.Fprintf(&sb, "   Type        : %s\n", doc.Type)
		fmt.Fprintf(&sb, "   Confidence  : %s\n", strings.ToUpper(doc.Confidence))
		sb.WriteString("   Excerpt:\n")
		sb.WriteString(strings.TrimSpace(excerpt))
		sb.WriteString("\n\n" + strings.Repeat("-", 100) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (i *Internal) query(ctx context.Context, drug, condition string) ([]internalDoc, error) {
	query := `SELECT document_id, document_type, confidence, raw_text
		FROM internal_documents WHERE 1=1`
	var args []any
	if drug != "" {
		args = append(args, "%"+strings.ToLower(drug)+"%")
		query += fmt.Sprintf(" AND lower(raw_text) LIKE $%d", len(args))
	}
	if condition != "" {
		args = append(args, "%"+strings.ToLower(condition)+"%")
		query += fmt.Sprintf(" AND lower(raw_text) LIKE $%d", len(args))
	}
	query += " ORDER BY document_id"

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying internal documents: %w", err)
	}
	defer rows.Close()

	var docs []internalDoc
	for rows.Next() {
		var doc internalDoc
		if err := rows.Scan(&doc.ID, &doc.Type, &doc.Confidence, &doc.Text); err != nil {
			return nil, fmt.Errorf("scanning internal document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating internal documents: %w", err)
	}
	return docs, nil
}
