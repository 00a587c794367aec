package export

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// exportDOCX converts the rendered report page to DOCX by piping it
// through pandoc on stdin/stdout. The binary must be on PATH; there is
// no pure-Go fallback.
func exportDOCX(page string, title string) (*Result, error) {
	pandoc, err := exec.LookPath("pandoc")
	if err != nil {
		return nil, fmt.Errorf("%w: pandoc not on PATH", ErrDOCXDependencyMissing)
	}

	cmd := exec.Command(pandoc, "--from=html", "--to=docx", "--standalone", "--output=-")
	cmd.Stdin = strings.NewReader(page)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("pandoc: %s", msg)
		}
		return nil, fmt.Errorf("run pandoc: %w", err)
	}

	return &Result{
		Data:     out.Bytes(),
		Filename: sanitizeFilename(title) + ".docx",
		MimeType: docxMimeType,
	}, nil
}
