package document

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/studywise/internal/logger"
)

// OCRService rasterizes PDF pages with pdftoppm and reads them with tesseract.
type OCRService struct {
	log           *logger.Logger
	pdftoppmPath  string
	tesseractPath string
	language      string
	dpi           int
	parallelism   int
}

func NewOCRService(language string, dpi int, log *logger.Logger) *OCRService {
	if language == "" {
		language = "eng"
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &OCRService{
		log:           log.With("component", "ocr"),
		pdftoppmPath:  lookPath("pdftoppm"),
		tesseractPath: lookPath("tesseract"),
		language:      language,
		dpi:           dpi,
		parallelism:   4,
	}
}

func lookPath(bin string) string {
	if path, err := exec.LookPath(bin); err == nil {
		return path
	}
	return ""
}

func (o *OCRService) IsAvailable() bool {
	return o.pdftoppmPath != "" && o.tesseractPath != ""
}

// ExtractPDF returns the OCR text of every page, in page order.
func (o *OCRService) ExtractPDF(ctx context.Context, data []byte) (string, error) {
	if !o.IsAvailable() {
		return "", fmt.Errorf("ocr tools not installed (need pdftoppm and tesseract)")
	}

	dir, err := os.MkdirTemp("", "studywise-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return "", fmt.Errorf("write ocr input: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, o.pdftoppmPath, "-r", strconv.Itoa(o.dpi), "-png", input, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", fmt.Errorf("list page images: %w", err)
	}
	sortPageImages(images)
	o.log.Debug("rasterized pdf", "pages", len(images), "dpi", o.dpi)

	texts := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, img := range images {
		g.Go(func() error {
			text, err := o.ExtractText(gctx, img)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(texts, "\n\n"), nil
}

func (o *OCRService) ExtractText(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, o.tesseractPath, imagePath, "stdout", "-l", o.language)

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// sortPageImages orders pdftoppm output (page-1.png, page-02.png, ...) by page number.
func sortPageImages(paths []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		n, _ := strconv.Atoi(base[strings.LastIndex(base, "-")+1:])
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool { return num(paths[i]) < num(paths[j]) })
}
