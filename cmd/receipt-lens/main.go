package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-lens/internal/extraction"
	"github.com/zombor/receipt-lens/internal/ocr"
	"github.com/zombor/receipt-lens/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-lens")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "receipt-lens.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./receipts", "Storage directory for uploaded files")
		recognizerType = fs.StringLong("recognizer", "none", "OCR recognizer: 'gemini', 'ollama' or 'none'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		locale         = fs.StringLong("locale", "", "Keyword and date locale: 'id', 'en' or empty for both")
		currency       = fs.StringLong("currency", "", "Currency code for amounts printed without a symbol")
		maxAmount      = fs.StringLong("max-amount", "", "Largest plausible amount")
		itemFactor     = fs.StringLong("item-total-factor", "", "Reject items whose amount exceeds this multiple of the total")
		lineTolerance  = fs.StringLong("line-tolerance", "", "Relative tolerance for unit price x quantity vs line total")
		monthFirst     = fs.BoolLong("month-first", "Read ambiguous numeric dates as month/day")
		totalWords     = fs.StringLong("total-keywords", "", "Comma-separated total keywords")
		subtotalWords  = fs.StringLong("subtotal-keywords", "", "Comma-separated subtotal keywords")
		taxWords       = fs.StringLong("tax-keywords", "", "Comma-separated tax keywords")
		ignoreWords    = fs.StringLong("ignore-keywords", "", "Comma-separated payment and change keywords")
		extractFile    = fs.StringLong("extract", "", "Extract a single file, print JSON and exit")
		_              = fs.StringLong("config", "", "Config file (flag per line)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_LENS"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := extraction.LocaleConfig(*locale)
	overrides := []struct {
		value string
		apply func(decimal.Decimal)
		name  string
	}{
		{*maxAmount, func(d decimal.Decimal) { cfg.MaxAmount = d }, "max-amount"},
		{*itemFactor, func(d decimal.Decimal) { cfg.ItemTotalFactor = d }, "item-total-factor"},
		{*lineTolerance, func(d decimal.Decimal) { cfg.LineTotalTolerance = d }, "line-tolerance"},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		d, err := decimal.NewFromString(o.value)
		if err != nil {
			slog.Error("Invalid number", "flag", o.name, "value", o.value, "error", err)
			os.Exit(1)
		}
		o.apply(d)
	}
	if *monthFirst {
		cfg.MonthFirst = true
	}
	if *currency != "" {
		cfg.DefaultCurrency = strings.ToUpper(*currency)
	}
	setKeywords(&cfg.TotalKeywords, *totalWords)
	setKeywords(&cfg.SubtotalKeywords, *subtotalWords)
	setKeywords(&cfg.TaxKeywords, *taxWords)
	setKeywords(&cfg.IgnoreKeywords, *ignoreWords)

	extractor, err := extraction.New(cfg)
	if err != nil {
		slog.Error("Invalid extraction configuration", "error", err)
		os.Exit(1)
	}
	active := extractor.Config()
	slog.Info("Extraction configured", "locale", *locale, "currency", active.DefaultCurrency, "month_first", active.MonthFirst, "max_amount", active.MaxAmount.String())

	recognizer, err := newRecognizer(*recognizerType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel)
	if err != nil {
		slog.Error("Failed to initialize recognizer", "error", err)
		os.Exit(1)
	}
	if recognizer != nil {
		defer recognizer.Close()
	}

	if *extractFile != "" {
		if err := extractOnce(*extractFile, extractor, recognizer); err != nil {
			slog.Error("Extraction failed", "file", *extractFile, "error", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := receipt.NewService(db, recognizer, store, extractor)
	server := receipt.NewServer(service, receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

func setKeywords(dst *[]string, csv string) {
	if strings.TrimSpace(csv) == "" {
		return
	}
	var words []string
	for _, w := range strings.Split(csv, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	*dst = words
}

// newRecognizer returns nil for "none".
func newRecognizer(kind, geminiKey, geminiModel, ollamaURL, ollamaModel string) (ocr.Recognizer, error) {
	switch kind {
	case "none", "":
		slog.Info("No OCR recognizer configured; image uploads are disabled")
		return nil, nil
	case "gemini":
		if geminiKey == "" {
			geminiKey = os.Getenv("GEMINI_API_KEY")
		}
		if geminiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini recognizer...", "model", geminiModel)
		return ocr.NewGemini(geminiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", ollamaURL, "model", ollamaModel)
		return ocr.NewOllama(ollamaURL, ollamaModel)
	default:
		return nil, fmt.Errorf("invalid recognizer %q: want gemini, ollama or none", kind)
	}
}

// extractOnce prints the extraction of a single text, image or PDF file.
func extractOnce(path string, extractor *extraction.Extractor, recognizer ocr.Recognizer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	contentType := mime.TypeByExtension(ext)
	switch ext {
	case ".heic", ".heif":
		contentType = "image/" + ext[1:]
	}

	var lines []extraction.RawLine
	switch {
	case ext == "" || strings.HasPrefix(contentType, "text/"):
		lines = extraction.SplitLines(string(data))
	case contentType == "":
		return fmt.Errorf("unsupported file type %q", ext)
	case recognizer == nil:
		return fmt.Errorf("%s needs OCR: set --recognizer", contentType)
	default:
		lines, err = recognizer.Recognize(data, contentType)
		if err != nil {
			return fmt.Errorf("recognizing receipt: %w", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(extractor.Extract(lines))
}
