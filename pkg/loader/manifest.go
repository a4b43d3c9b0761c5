package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/page-loader/pkg/models"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

// ManifestSuffix follows the page slug in the manifest file name
const ManifestSuffix = ".manifest.yaml"

// writeManifest records what a run produced next to the page file
func writeManifest(path string, result *models.PageResult) error {
	manifest := models.PageManifest{
		SourceURL: result.SourceURL,
		FinalURL:  result.FinalURL,
		PageFile:  filepath.Base(result.PagePath),
		AssetsDir: filepath.Base(result.AssetsDir),
		FetchedAt: result.FinishedAt,
		Assets:    make([]models.ManifestAsset, 0, len(result.Assets)),
	}
	for _, r := range result.Assets {
		manifest.Assets = append(manifest.Assets, models.NewManifestAsset(r))
	}

	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("%w: YAML manifest: %w", utils.ErrParsing, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing manifest '%s': %w", utils.ErrFilesystem, path, err)
	}
	return nil
}
