// Package dotnet builds and runs C# projects inside sandboxes.
package dotnet

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

// TargetFramework returns the target framework moniker for v.
func TargetFramework(v sandbox.Version) (string, error) {
	switch v {
	case sandbox.V8:
		return "net8.0", nil
	case sandbox.V9:
		return "net9.0", nil
	case sandbox.V10RC2:
		return "net10.0", nil
	}
	return "", sandbox.Invalid("unsupported dotnet_version %q", v)
}

// Package is a NuGet dependency. An empty Version lets NuGet pick.
type Package struct {
	Name    string
	Version string
}

// ParsePackage splits "Name" or "Name@1.2.3".
func ParsePackage(s string) (Package, error) {
	s = strings.TrimSpace(s)
	name, version, _ := strings.Cut(s, "@")
	if name == "" || len(s) > 100 {
		return Package{}, sandbox.Invalid("invalid package name %q", s)
	}
	return Package{Name: name, Version: version}, nil
}

type project struct {
	XMLName       xml.Name      `xml:"Project"`
	SDK           string        `xml:"Sdk,attr"`
	PropertyGroup propertyGroup `xml:"PropertyGroup"`
	ItemGroup     *itemGroup    `xml:"ItemGroup,omitempty"`
}

type propertyGroup struct {
	OutputType      string `xml:"OutputType"`
	TargetFramework string `xml:"TargetFramework"`
	ImplicitUsings  string `xml:"ImplicitUsings"`
	Nullable        string `xml:"Nullable"`
}

type itemGroup struct {
	References []packageReference `xml:"PackageReference"`
}

type packageReference struct {
	Include string `xml:"Include,attr"`
	Version string `xml:"Version,attr,omitempty"`
}

// Versions resolves the latest stable version of a package.
type Versions interface {
	Latest(ctx context.Context, name string) (string, bool)
}

// GenerateCsproj renders a console project manifest. Packages without a
// version are pinned to the latest stable release when resolver knows
// one, and left unpinned otherwise.
func GenerateCsproj(ctx context.Context, v sandbox.Version, packages []string, resolver Versions) (string, error) {
	tfm, err := TargetFramework(v)
	if err != nil {
		return "", err
	}

	p := project{
		SDK: "Microsoft.NET.Sdk",
		PropertyGroup: propertyGroup{
			OutputType:      "Exe",
			TargetFramework: tfm,
			ImplicitUsings:  "enable",
			Nullable:        "enable",
		},
	}
	for _, raw := range packages {
		pkg, err := ParsePackage(raw)
		if err != nil {
			return "", err
		}
		if pkg.Version == "" && resolver != nil {
			if latest, ok := resolver.Latest(ctx, pkg.Name); ok {
				pkg.Version = latest
			}
		}
		if p.ItemGroup == nil {
			p.ItemGroup = &itemGroup{}
		}
		p.ItemGroup.References = append(p.ItemGroup.References, packageReference{Include: pkg.Name, Version: pkg.Version})
	}

	out, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("rendering csproj: %w", err)
	}
	return string(out) + "\n", nil
}
