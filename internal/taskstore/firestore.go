package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hitoshi/todoman/internal/model"
)

// DefaultCollection はタスクを格納するFirestoreコレクション名。
const DefaultCollection = "todos"

// todoDocument はFirestore上のタスクドキュメントの形式。
type todoDocument struct {
	Text         string     `firestore:"text"`
	Completed    bool       `firestore:"completed"`
	UserID       string     `firestore:"userId"`
	ReminderTime *time.Time `firestore:"reminderTime"`
	ReminderSent bool       `firestore:"reminderSent"`
	CreatedAt    time.Time  `firestore:"createdAt,serverTimestamp"`
}

// FirestoreConfig はFirestoreクライアント生成の設定。
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string // 空の場合はApplication Default Credentialsを使用する
}

// NewFirestoreClient はFirebaseアプリを初期化してFirestoreクライアントを返す。
// FIRESTORE_EMULATOR_HOSTが設定されている場合、クライアントはエミュレータに接続する。
func NewFirestoreClient(ctx context.Context, cfg FirestoreConfig) (*firestore.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return client, nil
}

// FirestoreGateway はFirestoreのコレクションをタスクストアとして使う。
type FirestoreGateway struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreGateway はFirestoreGatewayを生成する。collectionが空の場合はDefaultCollectionを使う。
func NewFirestoreGateway(client *firestore.Client, collection string) *FirestoreGateway {
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreGateway{client: client, collection: collection}
}

func (g *FirestoreGateway) col() *firestore.CollectionRef {
	return g.client.Collection(g.collection)
}

// FetchByOwner はuserIdが一致するドキュメントを作成順で返す。
// 複合インデックスを不要にするため並べ替えはクライアント側で行う。
func (g *FirestoreGateway) FetchByOwner(ctx context.Context, ownerID string) ([]model.Task, error) {
	snaps, err := g.col().Where("userId", "==", ownerID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	tasks := make([]model.Task, 0, len(snaps))
	for _, snap := range snaps {
		var doc todoDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode task %s: %w", snap.Ref.ID, err)
		}
		tasks = append(tasks, doc.toTask(snap.Ref.ID))
	}

	sortByCreatedAt(tasks)
	return tasks, nil
}

// Create はドキュメントを追加する。createdAtはサーバー側のタイムスタンプになる。
func (g *FirestoreGateway) Create(ctx context.Context, task model.Task) (model.Task, error) {
	doc := todoDocument{
		Text:         task.Text,
		Completed:    task.Completed,
		UserID:       task.OwnerID,
		ReminderTime: task.ReminderTime,
		ReminderSent: task.ReminderSent,
	}

	ref, wr, err := g.col().Add(ctx, doc)
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to add task: %w", err)
	}

	// serverTimestampはコミット時刻で確定するため、書き込み結果の時刻と一致する
	doc.CreatedAt = wr.UpdateTime
	return doc.toTask(ref.ID), nil
}

// UpdateFields は所有者を確認したうえでトランザクション内で部分更新する。
func (g *FirestoreGateway) UpdateFields(ctx context.Context, ownerID, id string, update model.TaskUpdate) error {
	ref := g.col().Doc(id)
	updates := toFirestoreUpdates(update)

	err := g.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := checkOwner(tx, ref, ownerID); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Update(ref, updates)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return nil
}

// Delete は所有者を確認したうえでドキュメントを削除する。存在しない場合は成功とする。
func (g *FirestoreGateway) Delete(ctx context.Context, ownerID, id string) error {
	ref := g.col().Doc(id)

	err := g.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		err := checkOwner(tx, ref, ownerID)
		if errors.Is(err, errDocumentMissing) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// DeleteByOwner は所有者のドキュメントをBulkWriterで一括削除する。
func (g *FirestoreGateway) DeleteByOwner(ctx context.Context, ownerID string) error {
	snaps, err := g.col().Where("userId", "==", ownerID).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to query tasks for deletion: %w", err)
	}
	if len(snaps) == 0 {
		return nil
	}

	bw := g.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(snaps))
	for _, snap := range snaps {
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to enqueue deletion of task %s: %w", snap.Ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to delete tasks of owner: %w", err)
		}
	}
	return nil
}

// errDocumentMissing はトランザクション内でドキュメントが存在しなかったことを表す。
var errDocumentMissing = fmt.Errorf("document missing: %w", ErrNotFound)

// checkOwner はドキュメントの所有者を検証する。
// 存在しない場合はerrDocumentMissing、所有者が異なる場合はErrNotFoundを返す。
func checkOwner(tx *firestore.Transaction, ref *firestore.DocumentRef, ownerID string) error {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return errDocumentMissing
	}
	if err != nil {
		return err
	}

	owner, err := snap.DataAt("userId")
	if err != nil {
		return fmt.Errorf("failed to read owner: %w", err)
	}
	if owner != ownerID {
		return ErrNotFound
	}
	return nil
}

func toFirestoreUpdates(update model.TaskUpdate) []firestore.Update {
	var updates []firestore.Update
	if update.Completed != nil {
		updates = append(updates, firestore.Update{Path: "completed", Value: *update.Completed})
	}
	if update.ReminderSent != nil {
		updates = append(updates, firestore.Update{Path: "reminderSent", Value: *update.ReminderSent})
	}
	return updates
}

func (d todoDocument) toTask(id string) model.Task {
	return model.Task{
		ID:           id,
		Text:         d.Text,
		Completed:    d.Completed,
		OwnerID:      d.UserID,
		CreatedAt:    d.CreatedAt,
		ReminderTime: d.ReminderTime,
		ReminderSent: d.ReminderSent,
		Sync:         model.SyncStatusSynced,
	}
}

// compile-time interface check
var _ Gateway = (*FirestoreGateway)(nil)
