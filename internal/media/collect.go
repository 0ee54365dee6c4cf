package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Digital-Shane/treeview"
)

// VideoExt is the container extension picked up from directories.
const VideoExt = ".mkv"

type treeBuilderFunc func(context.Context, string, bool, ...treeview.Option[treeview.FileInfo]) (*treeview.Tree[treeview.FileInfo], error)

var buildTree treeBuilderFunc = treeview.NewTreeFromFileSystem

// Collect expands the inputs into the list of files to process. Files are
// taken as given; directories yield their .mkv files, direct children only
// unless recursive is set. Directory results are sorted by path.
func Collect(ctx context.Context, inputs []string, recursive bool) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read input %s: %w", in, err)
		}
		if !info.IsDir() {
			add(in)
			continue
		}

		files, err := collectDir(ctx, in, recursive)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}

func collectDir(ctx context.Context, dir string, recursive bool) ([]string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	depth := 2
	if recursive {
		depth = 64
	}

	t, err := buildTree(ctx, root, false,
		treeview.WithMaxDepth[treeview.FileInfo](depth),
		treeview.WithTraversalCap[treeview.FileInfo](2000000),
		treeview.WithFilterFunc(func(fi treeview.FileInfo) bool {
			if strings.HasPrefix(fi.Name(), "._") {
				return false
			}
			return fi.IsDir() || isVideo(fi.Name())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", dir, err)
	}

	var files []string
	for ni := range t.All(ctx) {
		fi := ni.Node.Data()
		if fi.IsDir() || !isVideo(fi.Name()) || !fi.FileInfo.Mode().IsRegular() {
			continue
		}
		if !recursive && filepath.Dir(fi.Path) != root {
			continue
		}
		files = append(files, fi.Path)
	}
	sort.Strings(files)
	return files, nil
}

func isVideo(name string) bool {
	return strings.EqualFold(filepath.Ext(name), VideoExt)
}
