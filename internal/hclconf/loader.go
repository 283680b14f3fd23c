// Package hclconf is the HCL implementation of config.Loader: it parses
// pipeline definition files, decodes them against the schema package, and
// translates the result into the format-agnostic config model.
package hclconf

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/mergegate/internal/config"
	"github.com/vk/mergegate/internal/ctxlog"
	"github.com/vk/mergegate/internal/fsutil"
	"github.com/vk/mergegate/internal/schema"
)

// Loader loads pipeline configuration from .hcl files.
type Loader struct{}

// NewLoader returns an HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under the given paths, merges them into one
// schema view and translates that into a validated pipeline model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)

	var filePaths []string
	for _, path := range paths {
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("locating pipeline files under %s: %w", path, err)
		}
		filePaths = append(filePaths, found...)
	}
	if len(filePaths) == 0 {
		return nil, fmt.Errorf("no .hcl pipeline files found under %v", paths)
	}
	logger.Debug("Found pipeline files to load.", "files", filePaths)

	parser := hclparse.NewParser()
	merged := &schema.File{}
	for _, filePath := range filePaths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", filePath, diags)
		}
		var f schema.File
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &f); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", filePath, diags)
		}
		if err := mergeFile(merged, &f, filePath); err != nil {
			return nil, err
		}
		logger.Debug("Loaded definitions from pipeline file.", "file", filePath)
	}

	pipeline, err := translate(merged)
	if err != nil {
		return nil, err
	}
	if err := pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	logger.Info("Pipeline configuration loaded.",
		"pipeline", pipeline.Name, "jobs", len(pipeline.Jobs), "gates", len(pipeline.Gates))
	return pipeline, nil
}

// mergeFile folds one parsed file into the accumulated schema view. Exactly
// one file may carry the pipeline block.
func mergeFile(dst, src *schema.File, filePath string) error {
	var result *multierror.Error
	if src.Pipeline != nil {
		if dst.Pipeline != nil {
			result = multierror.Append(result, fmt.Errorf("%s: duplicate pipeline block (already defined elsewhere)", filePath))
		}
		dst.Pipeline = src.Pipeline
	}
	dst.RetryPolicies = append(dst.RetryPolicies, src.RetryPolicies...)
	dst.Matrices = append(dst.Matrices, src.Matrices...)
	dst.Jobs = append(dst.Jobs, src.Jobs...)
	dst.Gates = append(dst.Gates, src.Gates...)
	return result.ErrorOrNil()
}
