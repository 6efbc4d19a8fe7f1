package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	branchPattern   = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	repoNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+/[a-zA-Z0-9_.-]+$`)
	urlPathPattern  = regexp.MustCompile(`^/[a-zA-Z0-9/_.~-]*$`)
)

// ValidateBranchName ensures a branch name is a plausible git branch.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if strings.HasPrefix(branch, "refs/") {
		return fmt.Errorf("branch name must be a short name, not a full ref")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	if strings.Contains(branch, "..") || strings.Contains(branch, "//") ||
		strings.HasSuffix(branch, "/") || strings.HasSuffix(branch, ".lock") {
		return fmt.Errorf("branch name is not a valid git ref component")
	}
	return nil
}

// ValidateRepoFullName ensures a repository is given as "owner/name".
func ValidateRepoFullName(fullName string) (owner, repo string, err error) {
	if !repoNamePattern.MatchString(fullName) {
		return "", "", fmt.Errorf("repository must be in owner/name format, got %q", fullName)
	}
	parts := strings.SplitN(fullName, "/", 2)
	if parts[0] == "." || parts[0] == ".." || parts[1] == "." || parts[1] == ".." {
		return "", "", fmt.Errorf("repository must be in owner/name format, got %q", fullName)
	}
	return parts[0], parts[1], nil
}

// ValidateURLPath ensures an HTTP route path is absolute and free of traversal elements.
func ValidateURLPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must start with '/', got %q", path)
	}
	if !urlPathPattern.MatchString(path) {
		return fmt.Errorf("path contains invalid characters: %q", path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal elements: %q", path)
	}
	return nil
}
