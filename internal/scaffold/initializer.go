package scaffold

import (
	"embed"
	"fmt"
	"os"

	"github.com/dyluth/flexprep/internal/config"
	"github.com/dyluth/flexprep/internal/layout"
)

//go:embed templates/*
var templatesFS embed.FS

// Names of the files 'flexprep init' lays down in the current directory.
const (
	ConfigFileName = "workcell.yml"
	LayoutFileName = "layout.csv"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the workcell starter files in the current directory.
// If force is true, it will remove existing workcell.yml and layout.csv first.
func Initialize(force bool) error {
	// Handle --force flag
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	// Get template files
	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	// Write files
	if err := writeFiles(files); err != nil {
		return err
	}

	// Validate created files
	if err := validateCreatedFiles(); err != nil {
		return err
	}

	return nil
}

// handleForce removes existing files if --force was specified
func handleForce() error {
	for _, name := range []string{ConfigFileName, LayoutFileName} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		fmt.Printf("⚠️  Removing existing %s...\n", name)
		if err := os.Remove(name); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	return nil
}

// getTemplateFiles reads and processes all template files
func getTemplateFiles() ([]FileInfo, error) {
	files := []FileInfo{}

	// workcell.yml
	workcellYml, err := templatesFS.ReadFile("templates/workcell.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read workcell.yml template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        ConfigFileName,
		Content:     workcellYml,
		Permissions: 0644,
	})

	// layout.csv
	layoutCsv, err := templatesFS.ReadFile("templates/layout.csv.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read layout.csv template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        LayoutFileName,
		Content:     layoutCsv,
		Permissions: 0644,
	})

	return files, nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles loads the created pair through the real config and
// layout code, so a fresh init is guaranteed to pass 'flexprep validate'.
func validateCreatedFiles() error {
	cfg, err := config.Load(ConfigFileName)
	if err != nil {
		return fmt.Errorf("created %s failed validation: %w", ConfigFileName, err)
	}

	table, err := layout.ReadTableFile(cfg.Layout)
	if err != nil {
		return fmt.Errorf("created %s is unreadable: %w", LayoutFileName, err)
	}
	if _, _, err := layout.Parse(table, cfg.Mix.Count, cfg.Mix.MaxComponents); err != nil {
		return fmt.Errorf("created %s failed validation: %w", LayoutFileName, err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized flexprep workcell!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ workcell.yml")
	fmt.Println("  ✓ layout.csv")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set your robot's address in workcell.yml")
	fmt.Println("  2. Replace layout.csv with your own plate-layout export")
	fmt.Println("  3. Run 'flexprep validate' to check the workcell")
}
