// Command paxth runs one product through acquisition and extraction from
// the command line and writes the CMS import CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"paxth/internal/bootstrap"
	"paxth/internal/config"
	"paxth/internal/export"
	"paxth/internal/model"
	"paxth/internal/pipeline"
	"paxth/internal/reconcile"
	"paxth/internal/runctx"
)

type urlList []string

func (u *urlList) String() string { return strings.Join(*u, ",") }

func (u *urlList) Set(v string) error {
	if len(*u) >= model.MaxURLSources {
		return fmt.Errorf("at most %d urls", model.MaxURLSources)
	}
	*u = append(*u, v)
	return nil
}

func main() {
	var urls urlList
	configPath := flag.String("config", "", "path to config file (optional)")
	category := flag.String("category", "", "product category")
	sku := flag.String("sku", "", "product SKU")
	baseCode := flag.String("base-code", "", "product base code")
	ean := flag.String("ean", "", "EAN barcode")
	weight := flag.String("shipping-weight", "", "shipping weight")
	color := flag.String("color", "", "color")
	productType := flag.String("product-type", "", "product type")
	methods := flag.String("methods", "", "comma-separated method per url: auto|http|browser|crawl4ai|firecrawl")
	docPath := flag.String("doc", "", "spec sheet to use as an extra source (.pdf, .txt, .md)")
	contextPath := flag.String("context", "", "file with supplemental product context")
	outDir := flag.String("out", ".", "directory for the exported CSV")
	policy := flag.String("reconcile", reconcile.PolicyBest, "final value policy: best|url1|url2|url3|document|none")
	listCategories := flag.Bool("list-categories", false, "print category names and exit")
	flag.Var(&urls, "url", "product page URL (repeat up to 3 times)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	rt, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{SkipDatabase: true})
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer rt.Close()

	if *listCategories {
		for _, name := range rt.Catalog.ListCategories() {
			fmt.Println(name)
		}
		return
	}

	product := model.Product{
		Category:       *category,
		SKU:            *sku,
		BaseCode:       *baseCode,
		EAN:            *ean,
		ShippingWeight: *weight,
		Color:          *color,
		ProductType:    *productType,
	}
	methodList := strings.Split(*methods, ",")
	for i, u := range urls {
		in := model.URLInput{URL: u}
		if i < len(methodList) {
			in.Method = model.Method(strings.TrimSpace(methodList[i]))
		}
		product.URLs = append(product.URLs, in)
	}
	if *docPath != "" {
		content, err := os.ReadFile(*docPath)
		if err != nil {
			log.Fatalf("read document: %v", err)
		}
		product.Document = &model.DocumentInput{Filename: filepath.Base(*docPath), Content: content}
	}
	if *contextPath != "" {
		content, err := os.ReadFile(*contextPath)
		if err != nil {
			log.Fatalf("read context: %v", err)
		}
		product.SupplementalContext = string(content)
	}

	rc := runctx.New(uuid.NewString(), rt.Artifacts, runctx.Credentials{}, logger)
	rc.OnLine(func(line string) { fmt.Fprintln(os.Stderr, line) })

	res, err := rt.Pipeline.Run(ctx, rc, product)
	var verr *pipeline.ValidationError
	switch {
	case errors.As(err, &verr):
		for _, p := range verr.Problems {
			fmt.Fprintln(os.Stderr, "  -", p)
		}
		os.Exit(2)
	case err != nil:
		log.Fatalf("run failed: %v", err)
	}

	final, err := finalValues(res.Matrix, *policy)
	if err != nil {
		log.Fatalf("reconcile: %v", err)
	}

	path := filepath.Join(*outDir, export.FileName(product.Category, product.SKU))
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("create %s: %v", path, err)
	}
	row := export.BuildRow(export.FromProduct(product), final, res.Headers)
	if err := export.WriteCSV(f, res.Headers, row); err != nil {
		f.Close()
		log.Fatalf("write csv: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("close %s: %v", path, err)
	}

	fmt.Printf("%d of %d attributes filled, saved %s\n", final.Filled(), len(res.Attributes), path)
}

// finalValues applies the chosen reconciliation policy to a fresh run.
func finalValues(m model.AttributeExtractionMatrix, policy string) (model.FinalValueMap, error) {
	switch policy {
	case "none":
		return model.FinalValueMap{}, nil
	case reconcile.PolicyBest:
		return reconcile.BestAvailable(m, nil), nil
	default:
		_, final, err := reconcile.Apply(m, nil, reconcile.Action{Policy: reconcile.PolicySource, Source: policy})
		return final, err
	}
}
