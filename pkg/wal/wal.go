// Package wal 提供 append-only 的 JSON Write-Ahead Log。
// 每筆紀錄寫入後立即 fsync，重啟時可依寫入順序重放。
package wal

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
)

// rw-r--r-- (擁有者讀寫，其他人唯讀)
const fileModeLog fs.FileMode = 0644

type WAL struct {
	file *os.File
	path string
	mu   sync.Mutex
}

// Open 開啟或建立一個 WAL 檔案
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func Open(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, fileModeLog)
	if err != nil {
		return nil, err
	}
	return &WAL{
		file: file,
		path: path,
	}, nil
}

// Path 回傳底層檔案路徑
func (w *WAL) Path() string {
	return w.path
}

// Append 寫入一筆紀錄並強制刷入硬碟。
// 回傳成功即代表紀錄已落盤，重放時一定看得到。
func (w *WAL) Append(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := json.NewEncoder(w.file).Encode(v); err != nil {
		return err
	}
	return w.file.Sync()
}

// ReadAll 依寫入順序讀取所有紀錄。
// callback 逐筆接收原始 JSON，避免一次將所有資料載入記憶體。
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(w.file)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if err := callback(raw); err != nil {
			return err
		}
	}
	return nil
}

// Close 關閉檔案
func (w *WAL) Close() error {
	return w.file.Close()
}
