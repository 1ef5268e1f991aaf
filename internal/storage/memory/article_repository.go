package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// ErrArticleExists возвращается при повторном создании артикула.
var ErrArticleExists = errors.New("article already exists")

type articleRepository struct {
	s *Store
}

func (r articleRepository) Create(ctx context.Context, article domain.Article) error {
	return r.s.update(ctx, "create article", func() error {
		if _, exists := r.s.articles[article.ID]; exists {
			return ErrArticleExists
		}
		r.s.articles[article.ID] = article
		return nil
	})
}

func (r articleRepository) Get(ctx context.Context, id string) (domain.Article, error) {
	var article domain.Article
	err := r.s.view(ctx, "get article", func() error {
		stored, ok := r.s.articles[id]
		if !ok {
			return domain.ErrArticleNotFound
		}
		article = stored
		return nil
	})
	return article, err
}

func (r articleRepository) ListActive(ctx context.Context) ([]domain.Article, error) {
	var result []domain.Article
	err := r.s.view(ctx, "list articles", func() error {
		for _, article := range r.s.articles {
			if article.IsActive() {
				result = append(result, article)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AddSupplierLink создаёт или заменяет связь артикул-поставщик.
func (r articleRepository) AddSupplierLink(ctx context.Context, link domain.ArticleSupplier) error {
	return r.s.update(ctx, "add supplier link", func() error {
		if _, ok := r.s.articles[link.ArticleID]; !ok {
			return domain.ErrArticleNotFound
		}
		if _, ok := r.s.suppliers[link.SupplierID]; !ok {
			return domain.ErrSupplierNotFound
		}
		bySupplier, ok := r.s.links[link.ArticleID]
		if !ok {
			bySupplier = make(map[string]domain.ArticleSupplier)
			r.s.links[link.ArticleID] = bySupplier
		}
		bySupplier[link.SupplierID] = link
		return nil
	})
}

func (r articleRepository) ListSupplierLinks(ctx context.Context, articleID string) ([]domain.ArticleSupplier, error) {
	var result []domain.ArticleSupplier
	err := r.s.view(ctx, "list supplier links", func() error {
		for _, link := range r.s.links[articleID] {
			result = append(result, link)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SupplierID < result[j].SupplierID })
	return result, nil
}

// ListDefaultLinks возвращает связи активных артикулов, где supplierID назначен поставщиком по умолчанию.
func (r articleRepository) ListDefaultLinks(ctx context.Context, supplierID string) ([]domain.ArticleSupplier, error) {
	var result []domain.ArticleSupplier
	err := r.s.view(ctx, "list default supplier links", func() error {
		for articleID, bySupplier := range r.s.links {
			article, ok := r.s.articles[articleID]
			if !ok || !article.IsActive() {
				continue
			}
			link, ok := bySupplier[supplierID]
			if ok && link.IsDefaultSupplier {
				result = append(result, link)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ArticleID < result[j].ArticleID })
	return result, nil
}

// IncrementStock прибавляет delta к остатку. Некорректный (отрицательный) остаток считается нулём.
func (r articleRepository) IncrementStock(ctx context.Context, id string, delta int64) (domain.Article, error) {
	var article domain.Article
	err := r.s.update(ctx, "increment stock", func() error {
		stored, ok := r.s.articles[id]
		if !ok {
			return domain.ErrArticleNotFound
		}
		stored.CurrentStock = domain.NonNegative(stored.CurrentStock) + delta
		r.s.articles[id] = stored
		article = stored
		return nil
	})
	return article, err
}

var _ domain.ArticleRepository = articleRepository{}
