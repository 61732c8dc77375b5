package export

import (
	"fmt"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// Document is the renderer-independent report layout: a title and an ordered
// list of sections, each holding paragraphs and tables. Frontends and the
// archive export consume this instead of reimplementing the report shape.
type Document struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Section is one titled block of the document.
type Section struct {
	Heading    string   `json:"heading"`
	Paragraphs []string `json:"paragraphs,omitempty"`
	Tables     []Table  `json:"tables,omitempty"`
}

// Table is a titled grid with a header row.
type Table struct {
	Title   string     `json:"title,omitempty"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

var participantColumns = []string{
	"Participant",
	"Genome coverage (%)",
	"Ns in sequence (%)",
	"Similarity (%)",
	"Mean depth",
	"Clade",
	"Legacy clade",
	"RSV subtype",
	"Sequencing platform",
}

var scoreColumns = []string{
	"Sample",
	"Your result",
	"Expected",
	"Reference",
	"Verdict",
	"IQR",
	"Pass rate",
}

// Render lays a computed report out as a document.
func Render(report domain.DistributionReport) *Document {
	doc := &Document{
		Title: fmt.Sprintf("RSV sequencing EQA report, distribution %s", report.Distribution),
	}

	for _, sample := range report.Samples {
		doc.Sections = append(doc.Sections, sampleSection(sample))
	}

	if section, ok := evaluationSection(report.Evaluation); ok {
		doc.Sections = append(doc.Sections, section)
	}

	return doc
}

func sampleSection(view domain.SampleView) Section {
	section := Section{
		Heading: fmt.Sprintf("Sample %s", view.Sample),
		Paragraphs: []string{
			fmt.Sprintf("Intended subtype: %s (reference accession %s)",
				view.IntendedSubtype, view.ReferenceAccession),
		},
	}

	table := Table{Title: "Results per participant", Columns: participantColumns}
	for _, row := range view.Rows {
		table.Rows = append(table.Rows, []string{
			row.Participant,
			row.CoveragePct.Format(2),
			row.AmbiguousPct.Format(2),
			row.Similarity.Format(2),
			row.MeanDepth.Format(2),
			row.Clade,
			row.LegacyClade,
			row.Subtype,
			row.Platform,
		})
	}
	section.Tables = append(section.Tables, table)

	if len(view.PlatformAggregates) > 0 {
		agg := Table{
			Title: "Results by sequencing platform",
			Columns: []string{
				"Platform",
				"Genome coverage (%)",
				"Ns in sequence (%)",
				"Similarity (%)",
				"Mean depth",
				"Clade",
				"Legacy clade",
			},
		}
		for _, group := range view.PlatformAggregates {
			if group.Count == 0 {
				// Zero-count groups carry empty cells, not "N/A".
				agg.Rows = append(agg.Rows, []string{group.Label, "", "", "", "", "", ""})
				continue
			}
			agg.Rows = append(agg.Rows, []string{
				group.Label,
				group.CoveragePct.Format(2),
				group.AmbiguousPct.Format(2),
				group.Similarity.Format(2),
				group.MeanDepth.Format(2),
				emptyAsNA(group.Clade),
				emptyAsNA(group.LegacyClade),
			})
		}
		section.Tables = append(section.Tables, agg)
	}

	return section
}

func evaluationSection(eval domain.Evaluation) (Section, bool) {
	indicators := []struct {
		title string
		rows  []domain.ScoreRow
	}{
		{"RSV subtyping", eval.Subtyping},
		{"Clade assignment", eval.Clade},
		{"Legacy clade assignment", eval.LegacyClade},
		{"Genome coverage", eval.GenomeCoverage},
		{"Ns in sequence", eval.AmbiguousBases},
		{"Similarity to reference", eval.Similarity},
		{"Read depth", eval.ReadDepth},
	}

	section := Section{Heading: "Performance evaluation"}
	for _, indicator := range indicators {
		if len(indicator.rows) == 0 {
			continue
		}
		table := Table{Title: indicator.title, Columns: scoreColumns}
		for _, row := range indicator.rows {
			table.Rows = append(table.Rows, []string{
				row.Sample,
				row.YourResult,
				row.Expected,
				row.Reference,
				string(row.Verdict),
				emptyAsNA(row.IQR),
				row.PassRate,
			})
		}
		section.Tables = append(section.Tables, table)
	}

	if len(section.Tables) == 0 {
		return Section{}, false
	}
	return section, true
}

func emptyAsNA(s string) string {
	if s == "" {
		return domain.NotAvailable
	}
	return s
}
