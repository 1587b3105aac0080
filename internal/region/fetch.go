package region

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/resilience"
)

// resolve turns the configured source into the path of a local .shp file. URLs are
// downloaded into tempDir, zip archives are extracted next to themselves under tempDir.
func resolve(ctx context.Context, source, tempDir string, client *http.Client) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		zipPath, err := download(ctx, client, source, tempDir)
		if err != nil {
			return "", err
		}
		source = zipPath
	}

	info, err := os.Stat(source)
	if err != nil {
		return "", eris.Wrapf(err, "region: stat %s", source)
	}

	switch {
	case info.IsDir():
		return findShapefile(source)
	case strings.EqualFold(filepath.Ext(source), ".zip"):
		name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		extractDir := filepath.Join(tempDir, name)
		if err := os.MkdirAll(extractDir, 0o755); err != nil {
			return "", eris.Wrap(err, "region: create extract dir")
		}
		if err := extractZIP(source, extractDir); err != nil {
			return "", eris.Wrap(err, "region: extract zip")
		}
		return findShapefile(extractDir)
	case strings.EqualFold(filepath.Ext(source), ".shp"):
		return source, nil
	}
	return "", eris.Errorf("region: %s is not a .shp file, directory or .zip archive", source)
}

// download fetches a boundary archive. An existing non-empty file is reused.
func download(ctx context.Context, client *http.Client, url, destDir string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "region: create temp dir")
	}

	parts := strings.Split(strings.SplitN(url, "?", 2)[0], "/")
	name := parts[len(parts)-1]
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}
	dest := filepath.Join(destDir, name)

	log := zap.L().With(zap.String("component", "region.download"), zap.String("url", url))
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		log.Debug("archive already downloaded", zap.String("path", dest))
		return dest, nil
	}

	log.Info("downloading boundary archive")

	policy := resilience.Policy{Name: "boundary download"}
	err := resilience.Do(ctx, policy, func(ctx context.Context) error {
		return fetchTo(ctx, client, url, dest)
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

// fetchTo writes the body of url to dest, removing dest on failure.
func fetchTo(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "region: build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "region: download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Wrap(&resilience.StatusError{URL: url, StatusCode: resp.StatusCode}, "region: download")
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "region: create file")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return eris.Wrap(err, "region: write file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return eris.Wrap(err, "region: close file")
	}
	return nil
}

// extractZIP flattens every file entry of the archive into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}
		out, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}
		if _, err := io.Copy(out, rc); err != nil {
			_ = out.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = out.Close()
		_ = rc.Close()
	}
	return nil
}

// findShapefile returns the single .shp file in dir.
func findShapefile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "region: read directory")
	}

	var found []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".shp") {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}

	switch len(found) {
	case 0:
		return "", eris.Errorf("region: no .shp file found in %s", dir)
	case 1:
		return found[0], nil
	}
	return "", eris.Errorf("region: %d shapefiles in %s, point boundary.path at one of them", len(found), dir)
}
