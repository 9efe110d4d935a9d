// Package external holds default implementations of the ports spec.md
// frames as "deliberately out of scope... external collaborators": PDF
// parsing and the agency-record regex. Both are replaceable -- a
// production deployment backed by a real PDF engine swaps these out the
// same way internal/llm swaps DeterministicGateway for GRPCGateway.
package external

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/carlosapgomes/caseflow/internal/services"
)

// agencyRecordPattern matches a line like "Registro ANS: 123456789-0",
// the agency record number format named informally in spec.md's §4.6
// prior-denial lookup discussion.
var agencyRecordPattern = regexp.MustCompile(`(?i)registro\s+ans[:\s]+([0-9][0-9.\-]{5,})`)

// RegexAgencyRecordExtractor implements services.AgencyRecordExtractor
// with the regex spec.md itself names as the extraction mechanism
// ("agency-record regex") -- the one port where the spec's own wording
// makes a stdlib regexp the grounded choice rather than a placeholder.
type RegexAgencyRecordExtractor struct{}

func NewRegexAgencyRecordExtractor() *RegexAgencyRecordExtractor {
	return &RegexAgencyRecordExtractor{}
}

func (e *RegexAgencyRecordExtractor) ExtractAndStrip(rawText string) (services.AgencyRecordResult, error) {
	loc := agencyRecordPattern.FindStringSubmatchIndex(rawText)
	if loc == nil {
		return services.AgencyRecordResult{}, fmt.Errorf("agency record number not found in PDF text")
	}
	recordNumber := rawText[loc[2]:loc[3]]

	lineStart := strings.LastIndexByte(rawText[:loc[0]], '\n') + 1
	lineEnd := loc[1]
	if idx := strings.IndexByte(rawText[lineEnd:], '\n'); idx >= 0 {
		lineEnd += idx
	} else {
		lineEnd = len(rawText)
	}
	cleaned := rawText[:lineStart] + rawText[lineEnd:]

	return services.AgencyRecordResult{
		CleanedText:        strings.TrimSpace(cleaned),
		AgencyRecordNumber: recordNumber,
	}, nil
}

// PlainTextPDFExtractor is the default PDFTextExtractor: it treats the
// downloaded bytes as already-decoded text. Real PDF binary parsing is a
// non-goal here (spec.md line 7); a deployment that needs it swaps this
// adapter for one backed by a real PDF engine without touching
// ProcessPDFService.
type PlainTextPDFExtractor struct{}

func NewPlainTextPDFExtractor() *PlainTextPDFExtractor {
	return &PlainTextPDFExtractor{}
}

func (e *PlainTextPDFExtractor) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	if len(pdfBytes) == 0 {
		return "", fmt.Errorf("empty PDF payload")
	}
	return string(pdfBytes), nil
}
