package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nkoub/recordlinkage/internal/adapter"
	"github.com/nkoub/recordlinkage/internal/config"
	"github.com/nkoub/recordlinkage/internal/errors"
)

// testSource 测试数据源：csv 文件存在，数据库可连接并能读取列
func testSource(ctx context.Context, src config.Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	if !src.IsSQL() {
		info, err := os.Stat(src.Path)
		if err != nil {
			return errors.Wrap(err, "stat csv source")
		}
		if info.IsDir() {
			return errors.Newf("%s is a directory", src.Path)
		}
		return nil
	}

	db, err := adapter.OpenSQL(src.Type, src.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Columns(ctx, src.Schema, src.Table)
	return err
}

// restrictSource 把 csv 路径和 sqlite 文件限制在数据目录内。
// 相对路径按数据目录解析。
func (s *server) restrictSource(src config.Source) (config.Source, error) {
	switch {
	case !src.IsSQL():
		if src.Path == "" {
			return src, nil
		}
		p, err := s.resolvePath(src.Path)
		if err != nil {
			return src, err
		}
		src.Path = p
	case src.Type == config.SourceSQLite:
		dsn, err := s.resolveSQLiteDSN(src.DSN)
		if err != nil {
			return src, err
		}
		src.DSN = dsn
	}
	return src, nil
}

func (s *server) resolvePath(path string) (string, error) {
	if s.dataDir == "" {
		return "", errors.WithHint(
			errors.Configf("file sources are disabled on this server"),
			"set LINKAGE_DATA_DIR to the directory holding csv and sqlite files")
	}
	root := filepath.Clean(s.dataDir)
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !within(root, p) {
		return "", errors.Configf("path %q is outside the data directory", path)
	}

	// 符号链接不能指向目录外
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		realRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			realRoot = root
		}
		if !within(realRoot, resolved) {
			return "", errors.Configf("path %q is outside the data directory", path)
		}
	}
	return p, nil
}

// resolveSQLiteDSN 解析 sqlite dsn 中的文件路径，保留 file: 前缀和参数
func (s *server) resolveSQLiteDSN(dsn string) (string, error) {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") {
		return dsn, nil
	}
	prefix := ""
	if rest, ok := strings.CutPrefix(dsn, "file:"); ok {
		prefix, dsn = "file:", rest
	}
	path, query, hasQuery := strings.Cut(dsn, "?")
	p, err := s.resolvePath(path)
	if err != nil {
		return "", err
	}
	if hasQuery {
		p += "?" + query
	}
	return prefix + p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
