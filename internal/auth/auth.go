// Package auth discovers a GitHub token when none is configured explicitly.
// Providers are tried in order until one yields a token.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// TokenProvider defines the interface for obtaining a GitHub authentication token.
// Implementations may use different sources (CLI tools, environment variables, etc).
type TokenProvider interface {
	GetToken() (string, error)
}

// GhCliProvider obtains tokens by shelling out to the GitHub CLI (`gh auth token`).
type GhCliProvider struct{}

// GetToken shells out to `gh auth token` to retrieve the current token.
// Returns an error if gh CLI is not installed, not authenticated, or the command fails.
func (g *GhCliProvider) GetToken() (string, error) {
	cmd := exec.Command("gh", "auth", "token", "--hostname", "github.com")
	output, err := cmd.Output()
	if err != nil {
		// Check if it's an exec error (gh not found)
		if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
			return "", errors.New("gh CLI not found in PATH")
		}
		// Other errors (not authenticated, etc)
		return "", fmt.Errorf("gh auth token failed: %w", err)
	}

	token := strings.TrimSpace(string(output))
	if token == "" {
		return "", errors.New("gh auth token returned empty token")
	}

	return token, nil
}

// EnvProvider obtains tokens from an environment variable.
type EnvProvider struct {
	Name string
}

// GetToken reads the provider's environment variable.
// Returns an error if the variable is not set or is empty.
func (e *EnvProvider) GetToken() (string, error) {
	token := strings.TrimSpace(os.Getenv(e.Name))
	if token == "" {
		return "", fmt.Errorf("%s environment variable not set or empty", e.Name)
	}
	return token, nil
}

// Chain tries each provider in order and returns the first token found.
type Chain []TokenProvider

// GetToken returns the first successful provider's token, or an error that
// lists why every provider failed.
func (c Chain) GetToken() (string, error) {
	if len(c) == 0 {
		return "", errors.New("no token providers configured")
	}

	var errs []error
	for _, p := range c {
		token, err := p.GetToken()
		if err == nil {
			return token, nil
		}
		errs = append(errs, err)
	}
	return "", fmt.Errorf("failed to obtain GitHub token: %w", errors.Join(errs...))
}

// DefaultChain is the fallback used when API_GITHUB_TOKEN is not set:
// 1. GITHUB_TOKEN environment variable
// 2. gh CLI
func DefaultChain() Chain {
	return Chain{
		&EnvProvider{Name: "GITHUB_TOKEN"},
		&GhCliProvider{},
	}
}
