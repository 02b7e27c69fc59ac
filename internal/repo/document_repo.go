package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

const documentTable = "indexed_documents"

var documentColumns = []string{"content_hash", "filename", "size", "chunk_count", "token_usage", "ctime", "atime"}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Upsert records an indexed document. Re-uploads of the same content only
// refresh atime.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *model.IndexedDocument) error {
	data := map[string]interface{}{
		"content_hash": doc.ContentHash,
		"filename":     doc.Filename,
		"size":         doc.Size,
		"chunk_count":  doc.ChunkCount,
		"token_usage":  doc.TokenUsage,
		"ctime":        doc.Ctime,
		"atime":        doc.Atime,
	}
	sqlStr, args, err := builder.BuildInsert(documentTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err == nil {
		return nil
	}
	if !dbutil.IsConflict(err) {
		return err
	}
	return r.Touch(ctx, doc.ContentHash, doc.Atime)
}

func (r *DocumentRepo) Touch(ctx context.Context, hash string, atime int64) error {
	sqlStr, args, err := builder.BuildUpdate(documentTable,
		map[string]interface{}{"content_hash": hash},
		map[string]interface{}{"atime": atime})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) Get(ctx context.Context, hash string) (*model.IndexedDocument, error) {
	sqlStr, args, err := builder.BuildSelect(documentTable, map[string]interface{}{"content_hash": hash}, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	docs, err := r.query(ctx, sqlStr, args)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &docs[0], nil
}

func (r *DocumentRepo) List(ctx context.Context, limit, offset uint) ([]model.IndexedDocument, error) {
	where := map[string]interface{}{"_orderby": "atime desc"}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect(documentTable, where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.query(ctx, sqlStr, args)
}

// ListIdleBefore returns documents whose last access is older than cutoff.
func (r *DocumentRepo) ListIdleBefore(ctx context.Context, cutoff int64, limit uint) ([]model.IndexedDocument, error) {
	where := map[string]interface{}{"atime <": cutoff, "_orderby": "atime asc"}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	sqlStr, args, err := builder.BuildSelect(documentTable, where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return r.query(ctx, sqlStr, args)
}

func (r *DocumentRepo) Delete(ctx context.Context, hash string) error {
	sqlStr, args, err := builder.BuildDelete(documentTable, map[string]interface{}{"content_hash": hash})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) query(ctx context.Context, sqlStr string, args []interface{}) ([]model.IndexedDocument, error) {
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.IndexedDocument, 0)
	for rows.Next() {
		var doc model.IndexedDocument
		if err := rows.Scan(&doc.ContentHash, &doc.Filename, &doc.Size, &doc.ChunkCount, &doc.TokenUsage, &doc.Ctime, &doc.Atime); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
