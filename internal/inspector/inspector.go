// Package inspector reads RPM headers of uploaded artifacts for logging.
package inspector

import (
	"fmt"
	"os"

	"github.com/cavaliergopher/rpm"
)

// PackageInfo is the subset of the RPM header reported after an upload
type PackageInfo struct {
	Name    string
	Epoch   int
	Version string
	Release string
	Arch    string
	Summary string
}

// NEVRA formats the package as name-[epoch:]version-release.arch
func (p PackageInfo) NEVRA() string {
	if p.Epoch > 0 {
		return fmt.Sprintf("%s-%d:%s-%s.%s", p.Name, p.Epoch, p.Version, p.Release, p.Arch)
	}
	return fmt.Sprintf("%s-%s-%s.%s", p.Name, p.Version, p.Release, p.Arch)
}

// Inspect parses the RPM header of the file at path
func Inspect(path string) (PackageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return PackageInfo{}, err
	}
	defer f.Close()

	pkg, err := rpm.Read(f)
	if err != nil {
		return PackageInfo{}, fmt.Errorf("parse rpm %s: %w", path, err)
	}

	return PackageInfo{
		Name:    pkg.Name(),
		Epoch:   pkg.Epoch(),
		Version: pkg.Version(),
		Release: pkg.Release(),
		Arch:    pkg.Architecture(),
		Summary: pkg.Summary(),
	}, nil
}
