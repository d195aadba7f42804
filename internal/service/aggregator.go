package service

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/captcha-corpus/internal/dto"
	"github.com/noah-isme/captcha-corpus/internal/models"
	"github.com/noah-isme/captcha-corpus/internal/similarity"
)

// SummarySheet is the worksheet name used by WriteSummaryXLSX.
const SummarySheet = "Summary"

var summaryHeader = []interface{}{"position", "captcha_id", "question", "answer", "completion", "similarity", "contains_answer"}

// BuildRows aligns items, completions and scores into detailed and summary
// rows. Similarity is expressed as a percentage. Slices must share a length.
func BuildRows(offset int, items []models.CaptchaItem, completions []string, scores []float64) ([]dto.DetailedRow, []dto.SummaryRow) {
	detailed := make([]dto.DetailedRow, 0, len(items))
	summary := make([]dto.SummaryRow, 0, len(items))

	for i, item := range items {
		answer := item.AnswerText()
		row := dto.SummaryRow{
			Position:       offset + i,
			CaptchaID:      item.ID,
			Question:       item.Question,
			Answer:         answer,
			Completion:     completions[i],
			Similarity:     scores[i] * 100,
			ContainsAnswer: similarity.Contains(completions[i], answer),
		}
		summary = append(summary, row)
		detailed = append(detailed, dto.DetailedRow{
			SummaryRow:  row,
			ImageBase64: base64.StdEncoding.EncodeToString(item.Image),
			MimeType:    mimetype.Detect(item.Image).String(),
			Diff:        similarity.CharDiff(answer, completions[i]),
		})
	}

	return detailed, summary
}

// WriteSummaryXLSX writes summary rows to a single-sheet workbook: a header
// row followed by one row per item.
func WriteSummaryXLSX(w io.Writer, rows []dto.SummaryRow) error {
	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := summaryHeader
	if err := book.SetSheetRow(SummarySheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.Position, row.CaptchaID, row.Question, row.Answer, row.Completion, row.Similarity, row.ContainsAnswer}
		if err := book.SetSheetRow(SummarySheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
