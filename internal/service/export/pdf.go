package export

import (
	"io"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/zhouzirui/synthesis-talk/backend/internal/model/chat"
)

const (
	pdfMargin      = 50.0
	pdfIndent      = 60.0
	pdfLineHeight  = 16.0
	pdfMessageGap  = 10.0
	pdfTitleGap    = 30.0
	pdfFontSize    = 12.0
	pdfTitle       = "Exported Conversation"
	pdfFontFamily  = "Helvetica"
	pdfBoldStyle   = "B"
	pdfNormalStyle = ""
)

// writePDF lays messages out on A4 pages, starting a new page whenever the
// cursor reaches the bottom margin.
func writePDF(w io.Writer, messages []chat.Message) error {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetAutoPageBreak(false, 0)
	doc.SetTitle(pdfTitle, true)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	pageWidth, pageHeight := doc.GetPageSize()
	textWidth := pageWidth - pdfIndent - pdfMargin

	doc.AddPage()
	y := pdfMargin

	ensureRoom := func() {
		if y >= pageHeight-pdfMargin {
			doc.AddPage()
			y = pdfMargin
		}
	}

	doc.SetFont(pdfFontFamily, pdfNormalStyle, pdfFontSize)
	doc.Text(pdfMargin, y, pdfTitle)
	y += pdfTitleGap

	for _, msg := range messages {
		ensureRoom()
		doc.SetFont(pdfFontFamily, pdfBoldStyle, pdfFontSize)
		doc.Text(pdfMargin, y, roleTitle(msg.Role)+":")
		y += pdfLineHeight

		doc.SetFont(pdfFontFamily, pdfNormalStyle, pdfFontSize)
		for _, line := range strings.Split(msg.Content, "\n") {
			wrapped := doc.SplitText(tr(strings.TrimSpace(line)), textWidth)
			if len(wrapped) == 0 {
				wrapped = []string{""}
			}
			for _, part := range wrapped {
				ensureRoom()
				doc.Text(pdfIndent, y, part)
				y += pdfLineHeight
			}
		}
		y += pdfMessageGap
	}

	return doc.Output(w)
}
