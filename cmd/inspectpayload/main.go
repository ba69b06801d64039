// Command inspectpayload runs extraction and classification over a provider
// payload, either a local JSON file or a key in the unresolved archive.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/pedrolicio/instagram-carousel-generator/internal/archive"
	"github.com/pedrolicio/instagram-carousel-generator/internal/classify"
	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
	"github.com/pedrolicio/instagram-carousel-generator/internal/extract"
	"github.com/pedrolicio/instagram-carousel-generator/internal/storage/blob"
)

type options struct {
	Config  string `short:"f" long:"config" description:"path to imagend.yaml"`
	File    string `long:"file" description:"path to a JSON payload"`
	Key     string `long:"key" description:"archive key, e.g. unresolved/<request>/<seq>-<model>.json"`
	Request string `long:"request" description:"inspect every archived payload of a request id"`
	Status  int    `long:"status" default:"200" description:"HTTP status to classify the payload with"`
}

type report struct {
	Source  string `json:"source"`
	Images  int    `json:"images"`
	Inline  bool   `json:"inline,omitempty"`
	FileURI string `json:"fileUri,omitempty"`
	Safety  string `json:"safety,omitempty"`
	Message string `json:"providerMessage,omitempty"`
	Kind    string `json:"classifiedAs,omitempty"`
	Status  int    `json:"status,omitempty"`
}

func main() {
	opts := &options{}
	if _, err := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash).Parse(); err != nil {
		log.Fatalf("%v", err)
	}

	cfg, err := config.Load(config.Options{ConfigFile: opts.Config})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	classifier := classify.New(cfg.Imagen.FallbackMarkers)
	var reports []report
	if opts.Request != "" {
		reports, err = inspectRequest(cfg, classifier, opts.Request, opts.Status)
	} else {
		var out report
		out, err = inspectOne(cfg, classifier, opts)
		reports = append(reports, out)
	}
	if err != nil {
		log.Fatalf("inspect: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, out := range reports {
		if err := enc.Encode(out); err != nil {
			log.Fatalf("encode report: %v", err)
		}
	}
}

func inspectOne(cfg *config.Config, classifier *classify.Classifier, opts *options) (report, error) {
	payload, source, err := load(cfg, opts)
	if err != nil {
		return report{}, err
	}
	out := inspect(classifier, payload, opts.Status)
	out.Source = source
	return out, nil
}

func inspectRequest(cfg *config.Config, classifier *classify.Classifier, requestID string, status int) ([]report, error) {
	ctx := context.Background()
	store, err := blob.New(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}
	a := archive.New(store)
	keys, err := a.List(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no archived payloads for request %s", requestID)
	}
	reports := make([]report, 0, len(keys))
	for _, key := range keys {
		payload, err := a.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		out := inspect(classifier, payload, status)
		out.Source = key
		reports = append(reports, out)
	}
	return reports, nil
}

func load(cfg *config.Config, opts *options) (document.Value, string, error) {
	switch {
	case opts.File != "":
		raw, err := os.ReadFile(opts.File)
		if err != nil {
			return document.Value{}, "", err
		}
		doc, err := document.Parse(raw)
		return doc, opts.File, err
	case opts.Key != "":
		ctx := context.Background()
		store, err := blob.New(ctx, cfg.Archive)
		if err != nil {
			return document.Value{}, "", err
		}
		doc, err := archive.New(store).Load(ctx, opts.Key)
		return doc, opts.Key, err
	default:
		return document.Value{}, "", errors.New("one of --file, --key or --request is required")
	}
}

// inspect reports what the orchestrator would see for payload: the extracted
// image, any safety block, and how an error response would be classified.
func inspect(classifier *classify.Classifier, payload document.Value, status int) report {
	out := report{Message: classify.ProviderMessage(payload)}
	if img, ok := extract.ExtractImage(payload); ok {
		out.Inline = img.Base64 != ""
		out.FileURI = img.FileURI
	}
	out.Images = len(extract.ExtractAllImages(payload))
	if details, blocked := classify.ScanSafety(payload); blocked {
		out.Safety = details
	}

	var ce *classify.Error
	if status >= 400 {
		ce = classifier.Classify(status, payload, out.Message, nil)
	} else {
		ce = classifier.SafetyBlock("", payload)
	}
	if ce != nil {
		out.Kind = ce.Kind.String()
		out.Status = ce.Status
	}
	return out
}
