package commands

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed all:templates
var templateFS embed.FS

// placeholder files keep otherwise empty directories in the embedded tree.
const placeholder = ".gitkeep"

// copyTemplate writes an embedded project scaffold into targetDir.
// Existing files are left alone unless force is set.
func copyTemplate(templateName, targetDir string, force bool) error {
	root := path.Join("templates", templateName)

	return fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if rel == "" {
			return nil
		}
		targetPath := filepath.Join(targetDir, filepath.FromSlash(renameSpecialFiles(rel)))

		if d.IsDir() {
			return os.MkdirAll(targetPath, 0750)
		}
		if d.Name() == placeholder {
			return nil
		}

		if !force {
			if _, err := os.Stat(targetPath); err == nil {
				return nil
			}
		}

		content, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(targetPath, content, 0600)
	})
}

// renameSpecialFiles maps embedded names to their on-disk names.
func renameSpecialFiles(p string) string {
	dir, base := path.Split(p)
	if base == "gitignore" {
		return dir + ".gitignore"
	}
	return p
}

// listTemplateFiles returns the files and directories a scaffold creates.
// Directories are reported with a trailing slash.
func listTemplateFiles(templateName string) ([]string, error) {
	var files []string
	root := path.Join("templates", templateName)

	err := fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		switch {
		case rel == "":
		case d.IsDir():
			files = append(files, rel+"/")
		case d.Name() != placeholder:
			files = append(files, renameSpecialFiles(rel))
		}
		return nil
	})

	return files, err
}

// groupTemplateFiles groups scaffold entries by top-level directory.
func groupTemplateFiles(files []string) map[string][]string {
	groups := map[string][]string{
		"config":  {},
		"queries": {},
		"macros":  {},
	}

	for _, f := range files {
		switch {
		case strings.HasPrefix(f, "queries/"):
			groups["queries"] = append(groups["queries"], f)
		case strings.HasPrefix(f, "macros/"):
			groups["macros"] = append(groups["macros"], f)
		default:
			groups["config"] = append(groups["config"], f)
		}
	}

	return groups
}
