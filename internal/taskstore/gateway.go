// Package taskstore はタスクを保存する外部ストアへのアクセス（Task Store Gateway）を提供する。
//
// すべての実装は所有者IDでアクセス範囲を限定する。更新・削除は対象タスクの
// 所有者が一致する場合にのみ行い、他人のタスクはErrNotFoundとして扱う。
package taskstore

import (
	"context"
	"errors"
	"sort"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrNotFound は対象タスクが存在しないか、呼び出し元の所有でない場合のエラー。
var ErrNotFound = errors.New("task not found")

// Gateway はタスクストアの操作を定義する。
type Gateway interface {
	// FetchByOwner は所有者のタスクを作成順で返す。
	FetchByOwner(ctx context.Context, ownerID string) ([]model.Task, error)

	// Create はタスクを保存し、ストアが採番したIDと作成日時を設定したタスクを返す。
	// 入力のID・CreatedAt・Syncは無視される。
	Create(ctx context.Context, task model.Task) (model.Task, error)

	// UpdateFields は指定フィールドのみを更新する。
	UpdateFields(ctx context.Context, ownerID, id string, update model.TaskUpdate) error

	// Delete はタスクを削除する。存在しない場合は成功とする。
	Delete(ctx context.Context, ownerID, id string) error

	// DeleteByOwner は所有者のタスクをすべて削除する。
	DeleteByOwner(ctx context.Context, ownerID string) error
}

// sortByCreatedAt は作成日時の昇順（同時刻はID順）に並べ替える。
func sortByCreatedAt(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
