package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 rename 失败。
var renameFunc = os.Rename

// WithTempFile 在 dir 下创建临时文件并交给 fn 使用；无论 fn 成功、失败还是 panic，临时文件都会被关闭并删除。
//
// dir 为空时使用系统临时目录。
func WithTempFile(dir, pattern string, fn func(f *os.File) error) (err error) {
	if fn == nil {
		return errors.New("fn 不能为空")
	}
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if rerr := os.Remove(name); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = fmt.Errorf("删除临时文件失败：%w", rerr)
		}
	}()
	return fn(tmp)
}

// CheckWritable 探测 dir 是否可以创建临时文件（用于启动时解析“校验能力是否可用”）。
func CheckWritable(dir string) error {
	return WithTempFile(dir, ".wallpipe-probe-*", func(f *os.File) error {
		_, err := f.Write([]byte{0})
		return err
	})
}

// WriteFileAtomic 在 dir 下原子写入 name（同目录临时文件 + rename）；目标已存在则覆盖。
func WriteFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	dst := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := writeAll(tmp, data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := renameFunc(tmpName, dst); err != nil {
		return err
	}

	// 目录 fsync：best-effort（不同平台/文件系统的语义差异很大）。
	_ = syncDirBestEffort(dir)
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDirBestEffort(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
