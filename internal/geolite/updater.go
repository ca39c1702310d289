package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"ipwarden/internal/support"
)

const (
	DefaultDownloadURL = "https://download.maxmind.com/app/geoip_download"
	CountryEdition     = "GeoLite2-Country"
)

// ErrNoLicenseKey indicates that no MaxMind license key has been configured.
var ErrNoLicenseKey = errors.New("geolite: license key is not configured")

// Updater downloads the country edition into a local mmdb file.
type Updater struct {
	Client      *http.Client
	DownloadURL string
	LicenseKey  string
}

// Update replaces destPath with the latest country database. The file is
// swapped in only after the archive has been fully extracted.
func (u *Updater) Update(ctx context.Context, destPath string) error {
	if strings.TrimSpace(u.LicenseKey) == "" {
		return ErrNoLicenseKey
	}

	if err := u.download(ctx, destPath); err != nil {
		return err
	}
	log.Info("GeoLite country database updated", "path", destPath)
	return nil
}

func (u *Updater) download(ctx context.Context, destPath string) error {
	req, err := support.NewGetRequest(ctx, u.buildDownloadURL())
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", CountryEdition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", CountryEdition, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", CountryEdition, err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	targetBase := CountryEdition + ".mmdb"
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", CountryEdition, err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != targetBase {
			continue
		}
		if err := writeToFile(destPath, tarReader); err != nil {
			return fmt.Errorf("%s: write file: %w", CountryEdition, err)
		}
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", CountryEdition)
}

func writeToFile(destPath string, data io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), destPath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

func (u *Updater) buildDownloadURL() string {
	base := u.DownloadURL
	if base == "" {
		base = DefaultDownloadURL
	}
	query := url.Values{}
	query.Set("edition_id", CountryEdition)
	query.Set("license_key", u.LicenseKey)
	query.Set("suffix", "tar.gz")
	return base + "?" + query.Encode()
}
