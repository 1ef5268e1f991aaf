package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// ErrArticleExists возвращается при повторном создании артикула.
var ErrArticleExists = errors.New("article already exists")

type articleRepository struct {
	s *Store
}

// NewArticleRepository создаёт PostgreSQL-реализацию ArticleRepository.
func NewArticleRepository(store *Store) domain.ArticleRepository {
	return &articleRepository{s: store}
}

func (r *articleRepository) Create(ctx context.Context, article domain.Article) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.s.exec(ctx).ExecContext(ctx, `
		INSERT INTO articles (id, name, current_stock, deactivated_at)
		VALUES ($1,$2,$3,$4)
	`, article.ID, article.Name, article.CurrentStock, nullTime(article.DeactivatedAt)); err != nil {
		if isUniqueViolation(err) {
			return ErrArticleExists
		}
		return domain.StoreError("insert article", err)
	}
	return nil
}

func (r *articleRepository) Get(ctx context.Context, id string) (domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	article, err := scanArticle(r.s.exec(ctx).QueryRowContext(ctx, `
		SELECT id, name, current_stock, deactivated_at
		FROM articles
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Article{}, domain.ErrArticleNotFound
		}
		return domain.Article{}, domain.StoreError("select article", err)
	}
	return article, nil
}

func (r *articleRepository) ListActive(ctx context.Context) ([]domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.exec(ctx).QueryContext(ctx, `
		SELECT id, name, current_stock, deactivated_at
		FROM articles
		WHERE deactivated_at IS NULL
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, domain.StoreError("list articles", err)
	}
	defer rows.Close()

	result := make([]domain.Article, 0)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, domain.StoreError("scan article", err)
		}
		result = append(result, article)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("iterate articles", err)
	}
	return result, nil
}

func (r *articleRepository) AddSupplierLink(ctx context.Context, link domain.ArticleSupplier) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.s.exec(ctx).ExecContext(ctx, `
		INSERT INTO article_suppliers (article_id, supplier_id, is_default)
		VALUES ($1,$2,$3)
		ON CONFLICT (article_id, supplier_id) DO UPDATE SET is_default = EXCLUDED.is_default
	`, link.ArticleID, link.SupplierID, link.IsDefaultSupplier); err != nil {
		if violatesConstraint(err, "article_suppliers_article_id_fkey") {
			return domain.ErrArticleNotFound
		}
		if violatesConstraint(err, "article_suppliers_supplier_id_fkey") {
			return domain.ErrSupplierNotFound
		}
		return domain.StoreError("upsert supplier link", err)
	}
	return nil
}

func (r *articleRepository) ListSupplierLinks(ctx context.Context, articleID string) ([]domain.ArticleSupplier, error) {
	return r.listLinks(ctx, `
		SELECT article_id, supplier_id, is_default
		FROM article_suppliers
		WHERE article_id = $1
		ORDER BY supplier_id ASC
	`, articleID)
}

func (r *articleRepository) ListDefaultLinks(ctx context.Context, supplierID string) ([]domain.ArticleSupplier, error) {
	return r.listLinks(ctx, `
		SELECT l.article_id, l.supplier_id, l.is_default
		FROM article_suppliers l
		JOIN articles a ON a.id = l.article_id
		WHERE l.supplier_id = $1
		  AND l.is_default
		  AND a.deactivated_at IS NULL
		ORDER BY l.article_id ASC
	`, supplierID)
}

// IncrementStock прибавляет delta одним UPDATE, чтобы параллельные финализации не теряли приращения.
func (r *articleRepository) IncrementStock(ctx context.Context, id string, delta int64) (domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	article, err := scanArticle(r.s.exec(ctx).QueryRowContext(ctx, `
		UPDATE articles
		SET current_stock = GREATEST(current_stock, 0) + $2
		WHERE id = $1
		RETURNING id, name, current_stock, deactivated_at
	`, id, delta))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Article{}, domain.ErrArticleNotFound
		}
		return domain.Article{}, domain.StoreError("increment stock", err)
	}
	return article, nil
}

func (r *articleRepository) listLinks(ctx context.Context, query string, arg string) ([]domain.ArticleSupplier, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.exec(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, domain.StoreError("list supplier links", err)
	}
	defer rows.Close()

	result := make([]domain.ArticleSupplier, 0)
	for rows.Next() {
		var link domain.ArticleSupplier
		if err := rows.Scan(&link.ArticleID, &link.SupplierID, &link.IsDefaultSupplier); err != nil {
			return nil, domain.StoreError("scan supplier link", err)
		}
		result = append(result, link)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("iterate supplier links", err)
	}
	return result, nil
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		article     domain.Article
		deactivated sql.NullTime
	)
	if err := row.Scan(&article.ID, &article.Name, &article.CurrentStock, &deactivated); err != nil {
		return domain.Article{}, err
	}
	article.DeactivatedAt = timePtr(deactivated)
	return article, nil
}

var _ domain.ArticleRepository = (*articleRepository)(nil)
