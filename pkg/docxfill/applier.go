package docxfill

import (
	"context"
	"fmt"

	docxml "github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill/xml"
)

type applier struct {
	log *Logger
	// afterWrite runs after the package was written to disk. Tests use it to fail a
	// file after commit and exercise restoration.
	afterWrite func(path string) error
}

// apply executes plan against pkg and writes the result to path. Every part is
// rewritten and verified before anything is written, and the write itself replaces
// the file atomically, so a failure leaves the file on disk either untouched or fully
// rewritten.
func (a *applier) apply(ctx context.Context, pkg *docxml.Package, plan *FilePlan, path string) error {
	var packageParts []string
	for i := range plan.Parts {
		if err := ctx.Err(); err != nil {
			return classify("replacement applying", path, AccessNone, err)
		}
		pp := &plan.Parts[i]

		rendered, err := a.rewritePart(pkg, pp)
		if err != nil {
			return classify("replacement applying", path, AccessNone, err)
		}
		if _, err := docxml.ParsePart(pp.Part, rendered); err != nil {
			return classify("replacement applying", path, AccessNone,
				fmt.Errorf("rewritten part %s is not well-formed: %w", pp.Part, err))
		}
		pkg.StagePart(pp.Part, rendered)
		if len(pp.Images) > 0 {
			packageParts = append(packageParts, docxml.RelationshipsPartName(pp.Part))
		}
		a.log.WithField("part", pp.Part).Debug("Staged %d text edits, %d run removals, %d images",
			len(pp.Edits), len(pp.Removals), len(pp.Images))
	}

	if len(packageParts) > 0 {
		packageParts = append(packageParts, docxml.ContentTypesPart)
	}
	for _, name := range packageParts {
		data, err := pkg.ReadPart(name)
		if err != nil {
			return classify("replacement applying", path, AccessRead, err)
		}
		if err := docxml.CheckWellFormed(data); err != nil {
			return classify("replacement applying", path, AccessNone,
				fmt.Errorf("rewritten part %s is not well-formed: %w", name, err))
		}
	}

	if err := ctx.Err(); err != nil {
		return classify("replacement applying", path, AccessNone, err)
	}
	if err := pkg.Save(path); err != nil {
		return classify("file writing", path, AccessWrite, err)
	}
	if a.afterWrite != nil {
		if err := a.afterWrite(path); err != nil {
			return classify("file writing", path, AccessWrite, err)
		}
	}
	return nil
}

func (a *applier) rewritePart(pkg *docxml.Package, pp *PartPlan) ([]byte, error) {
	tree := pp.Tree

	markup := make(map[*ImageDirective][]byte, len(pp.Images))
	for _, img := range pp.Images {
		relID, err := pkg.AddImage(pp.Part, img.Data, img.ContentType)
		if err != nil {
			return nil, err
		}
		id, err := pkg.NextDrawingID()
		if err != nil {
			return nil, err
		}
		run := &tree.Paragraphs[img.Paragraph].Runs[img.Run]
		drawing := docxml.Drawing{RelID: relID, ID: id, Name: img.Name, CX: img.CX, CY: img.CY}
		markup[img] = drawing.Markup(run.Prefix)
	}

	splices := make([]docxml.Splice, 0, len(pp.Edits)+len(pp.Removals))
	for _, edit := range pp.Edits {
		node := tree.Paragraphs[edit.Paragraph].Runs[edit.Run].Texts[edit.Text]

		pieces := make([]docxml.Piece, 0, len(edit.Pieces))
		for _, ep := range edit.Pieces {
			piece := docxml.Piece{Kind: ep.Kind, Text: ep.Text}
			if ep.Image != nil {
				piece.Markup = markup[ep.Image]
			}
			pieces = append(pieces, piece)
		}

		splices = append(splices, docxml.Splice{
			Start: node.Start,
			End:   node.End,
			Data:  docxml.RenderText(tree.Data, node, pieces),
		})
	}
	for _, ref := range pp.Removals {
		run := tree.Paragraphs[ref.Paragraph].Runs[ref.Run]
		splices = append(splices, docxml.Splice{Start: run.Start, End: run.End})
	}

	return docxml.ApplySplices(tree.Data, splices)
}
