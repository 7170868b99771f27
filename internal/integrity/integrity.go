// Package integrity scans Minecraft region files (.mca) for corruption
// indicators that are cheap to detect without a full NBT parse:
// zero-byte files and files whose size is not a whole multiple of the
// 4096-byte sector Minecraft's region format uses.
package integrity

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// SectorSize is the fixed sector size of the Minecraft region (.mca)
// file format.
const SectorSize = 4096

// minHeaderBytes is the smallest a valid region file can be: two
// header sectors (the chunk location table and timestamp table) with
// no chunk data yet written.
const minHeaderBytes = SectorSize * 2

// IssueType classifies the kind of problem found in a region file.
type IssueType string

const (
	IssueZeroByte  IssueType = "zero_byte"
	IssueTruncated IssueType = "truncated"
	IssueUnreadable IssueType = "unreadable"
)

// Issue describes one problem found in one region file.
type Issue struct {
	File    string
	Type    IssueType
	Details string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.File, i.Details, i.Type)
}

// Report is the result of scanning a world's region folders.
type Report struct {
	RegionFolders []string
	CheckedFiles  int
	Issues        []Issue
	Error         string
}

// HasIssues reports whether any region file issues were found.
func (r Report) HasIssues() bool { return len(r.Issues) > 0 }

// IsHealthy reports whether the scan completed without errors or
// issues.
func (r Report) IsHealthy() bool { return r.Error == "" && !r.HasIssues() }

// Summary renders a one-line human-readable verdict.
func (r Report) Summary() string {
	if r.Error != "" {
		return fmt.Sprintf("Could not check world integrity: %s", r.Error)
	}
	if !r.HasIssues() {
		return fmt.Sprintf("World appears healthy (%d region files checked)", r.CheckedFiles)
	}
	return fmt.Sprintf("Found %d issues in %d region files", len(r.Issues), r.CheckedFiles)
}

// CheckRegionFile inspects a single .mca file's size for corruption
// indicators. Returns nil if the file looks structurally sound.
func CheckRegionFile(path string) *Issue {
	fi, err := os.Stat(path)
	if err != nil {
		return &Issue{File: path, Type: IssueUnreadable, Details: err.Error()}
	}

	size := fi.Size()
	if size == 0 {
		return &Issue{File: path, Type: IssueZeroByte, Details: "file is empty (0 bytes)"}
	}
	if size < minHeaderBytes {
		return &Issue{
			File: path, Type: IssueTruncated,
			Details: fmt.Sprintf("file too small (%s, expected at least %s)",
				humanize.Bytes(uint64(size)), humanize.Bytes(minHeaderBytes)),
		}
	}
	if size%SectorSize != 0 {
		return &Issue{
			File: path, Type: IssueTruncated,
			Details: fmt.Sprintf("size (%s) not a multiple of %d bytes", humanize.Bytes(uint64(size)), SectorSize),
		}
	}
	return nil
}

// FindRegionFolders locates every region/ subdirectory under a world
// folder: the overworld's region/, the Nether's DIM-1/region/, the
// End's DIM1/region/, and any other DIM*/region/ folder added by
// installed dimensions.
func FindRegionFolders(worldDir string) ([]string, error) {
	var folders []string

	addIfExists := func(path string) {
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			folders = append(folders, path)
		}
	}

	addIfExists(filepath.Join(worldDir, "region"))
	addIfExists(filepath.Join(worldDir, "DIM-1", "region"))
	addIfExists(filepath.Join(worldDir, "DIM1", "region"))

	entries, err := os.ReadDir(worldDir)
	if err != nil {
		if os.IsNotExist(err) {
			return folders, nil
		}
		return nil, fmt.Errorf("integrity: read world dir %s: %w", worldDir, err)
	}
	seen := make(map[string]bool, len(folders))
	for _, f := range folders {
		seen[f] = true
	}
	for _, e := range entries {
		if !e.IsDir() || !isDimFolder(e.Name()) {
			continue
		}
		region := filepath.Join(worldDir, e.Name(), "region")
		if seen[region] {
			continue
		}
		if fi, err := os.Stat(region); err == nil && fi.IsDir() {
			folders = append(folders, region)
			seen[region] = true
		}
	}
	return folders, nil
}

func isDimFolder(name string) bool {
	return len(name) > 3 && name[:3] == "DIM"
}

// CheckWorldIntegrity scans every region file under worldDir and
// reports any corruption indicators found.
func CheckWorldIntegrity(worldDir string) Report {
	folders, err := FindRegionFolders(worldDir)
	if err != nil {
		return Report{Error: err.Error()}
	}
	report := Report{RegionFolders: folders}
	if len(folders) == 0 {
		report.Error = "no region folders found (world may be empty or invalid)"
		return report
	}

	for _, folder := range folders {
		entries, err := os.ReadDir(folder)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".mca" {
				continue
			}
			report.CheckedFiles++
			path := filepath.Join(folder, e.Name())
			if issue := CheckRegionFile(path); issue != nil {
				report.Issues = append(report.Issues, *issue)
			}
		}
	}
	return report
}
