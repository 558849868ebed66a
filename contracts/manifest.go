package contracts

import (
	"fmt"
	"path"
	"regexp"
)

type ComponentListing struct {
	Components []ComponentManifest `json:"components"`
}

type ComponentManifest struct {
	Name             string         `json:"name"`
	Version          string         `json:"version"`
	Capability       string         `json:"capability,omitempty"`
	IsRequired       bool           `json:"is_required"`
	InstallPath      string         `json:"install_path"`
	PostInstallProbe string         `json:"post_install_probe,omitempty"`
	ManualNotes      string         `json:"manual_notes,omitempty"`
	Files            []ManifestFile `json:"files"`
}

type ManifestFile struct {
	Filename    string `json:"filename"`
	SourceURL   URL    `json:"source_url"`
	SHA256      string `json:"sha256"`
	ExtractPath string `json:"extract_path,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
}

// DestinationPath is where the artifact lands under the component's
// install tree, before any extraction.
func (this ManifestFile) DestinationPath(installPath string) string {
	return path.Join(installPath, this.Filename)
}

// IsArchive reports whether the file is relocated via extraction rather
// than copied into place.
func (this ManifestFile) IsArchive() bool {
	switch path.Ext(this.Filename) {
	case ".zip", ".tar", ".tgz", ".rar":
		return true
	}
	if ext := path.Ext(this.Filename); ext == ".gz" || ext == ".xz" || ext == ".bz2" || ext == ".lz4" || ext == ".sz" {
		return true
	}
	return false
}

var sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func (this ComponentManifest) Validate() error {
	if this.Name == "" {
		return fmt.Errorf("%w: component name is required", ManifestInvalid)
	}
	if this.InstallPath == "" {
		return fmt.Errorf("%w: install path is required for %q", ManifestInvalid, this.Name)
	}
	if len(this.Files) == 0 {
		return fmt.Errorf("%w: component %q declares no files", ManifestInvalid, this.Name)
	}
	inventory := make(map[string]struct{})
	for _, file := range this.Files {
		if file.Filename == "" {
			return fmt.Errorf("%w: component %q contains a file without a filename", ManifestInvalid, this.Name)
		}
		if _, found := inventory[file.Filename]; found {
			return fmt.Errorf("%w: duplicate filename %q in component %q", ManifestInvalid, file.Filename, this.Name)
		}
		inventory[file.Filename] = struct{}{}
		if !sha256Pattern.MatchString(file.SHA256) {
			return fmt.Errorf("%w: file %q in component %q: sha256 must be 64 lowercase hex characters", ManifestInvalid, file.Filename, this.Name)
		}
		if file.SourceURL.Value().String() == "" {
			return fmt.Errorf("%w: file %q in component %q: source url is required", ManifestInvalid, file.Filename, this.Name)
		}
		if file.SizeBytes < 0 {
			return fmt.Errorf("%w: file %q in component %q: negative size", ManifestInvalid, file.Filename, this.Name)
		}
	}
	return nil
}

func (this ComponentListing) Validate() error {
	names := make(map[string]struct{})
	for _, component := range this.Components {
		if _, found := names[component.Name]; found {
			return fmt.Errorf("%w: duplicate component name %q", ManifestInvalid, component.Name)
		}
		names[component.Name] = struct{}{}
		if err := component.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TotalSizeBytes is the progress denominator for a whole-component install.
func (this ComponentManifest) TotalSizeBytes() (total int64) {
	for _, file := range this.Files {
		total += file.SizeBytes
	}
	return total
}

func (this ComponentManifest) Title() string {
	return fmt.Sprintf("[%s @ %s]", this.Name, this.Version)
}
