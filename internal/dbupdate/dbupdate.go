// Package dbupdate downloads the five bundled IPDB blobs from GitHub,
// resolving the latest main-branch commit SHA first so every file comes
// from one consistent revision. Grounded on original_source's
// github.rs (RepositoryInfo/Commit shapes, the branches/main API call)
// and examples/download_db.rs (the per-file download loop, here
// collapsed from four tokio tasks-with-progress-channels into one
// goroutine per file reporting over a single Progress channel — Go has
// no separate async/sync coloring, so only this collaborator needs its
// own background goroutine, same as spec.md's "async is used only for
// the HTTP downloader" note).
package dbupdate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	userContentBaseURL  = "https://raw.githubusercontent.com/shellrow/nustat"
	repositoryInfoURL   = "https://api.github.com/repos/shellrow/nustat/branches/main"
	defaultHTTPTimeout  = 30 * time.Second
	defaultFileDownload = 2 * time.Minute
)

// RepositoryInfo is the subset of GitHub's branch API response this
// package needs: just enough to get the latest commit's SHA.
type RepositoryInfo struct {
	Name   string `json:"name"`
	Commit Commit `json:"commit"`
}

type Commit struct {
	SHA string `json:"sha"`
}

// LatestCommitSHA resolves the SHA of the latest commit on main,
// mirroring original_source's net::http::get_commit_info.
func LatestCommitSHA(ctx context.Context) (string, error) {
	client := &http.Client{Timeout: defaultHTTPTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, repositoryInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dbupdate: fetch repository info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dbupdate: repository info status %d", resp.StatusCode)
	}

	var info RepositoryInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("dbupdate: decode repository info: %w", err)
	}
	return info.Commit.SHA, nil
}

// blobNames lists the five bundled files, matching internal/ipdb's
// expectations.
var blobNames = []string{"ipv4.bin", "ipv6.bin", "country.bin", "as.bin", "tcp-service.bin"}

// Progress reports one file's download outcome as it completes.
type Progress struct {
	File  string
	Bytes int64
	Err   error
}

// DownloadAll fetches every blob for the given commit SHA into destDir,
// one goroutine per file, reporting each completion on the returned
// channel. The channel is closed once every file has reported.
func DownloadAll(ctx context.Context, sha, destDir string) <-chan Progress {
	out := make(chan Progress, len(blobNames))
	go func() {
		defer close(out)
		done := make(chan Progress, len(blobNames))
		for _, name := range blobNames {
			name := name
			go func() {
				n, err := downloadOne(ctx, blobURL(sha, name), filepath.Join(destDir, name))
				done <- Progress{File: name, Bytes: n, Err: err}
			}()
		}
		for range blobNames {
			out <- <-done
		}
	}()
	return out
}

func blobURL(sha, name string) string {
	return fmt.Sprintf("%s/%s/db/%s", userContentBaseURL, sha, name)
}

func downloadOne(ctx context.Context, url, destPath string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultFileDownload)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dbupdate: download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("dbupdate: download %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return n, fmt.Errorf("dbupdate: write %s: %w", destPath, err)
	}
	return n, nil
}
