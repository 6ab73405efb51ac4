package transformer

import (
	"fmt"

	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/util"
)

// TermTransformer maps a taxonomy term. The IRI is a query-parameter
// qualified home URL keyed on the numeric term id, not the slug permalink,
// so renaming a term never breaks federated references.
type TermTransformer struct {
	store  ContentStore
	conf   *util.AppConfig
	termId int64

	// taxonomy is cached after the first resolve so ToID stays usable
	// for tombstones of terms that still resolve
	taxonomy string
}

func (t *TermTransformer) ToObject() (ActivityObject, error) {
	err, term := t.store.ReadTermById(t.termId)
	if err != nil || term == nil {
		return nil, fmt.Errorf("%w: term %d", ErrEntityVanished, t.termId)
	}
	t.taxonomy = term.Taxonomy

	obj := &domain.Object{
		ID:   t.ToID(),
		Type: "Note",
		Name: term.Name,
		URL:  fmt.Sprintf("https://%s/%s/%s", t.conf.Conf.Domain, term.Taxonomy, term.Slug),
		Tag: []domain.Tag{
			{Type: "Hashtag", Href: t.ToID(), Name: "#" + term.Slug},
		},
	}
	return obj, nil
}

func (t *TermTransformer) ToID() string {
	taxonomy := t.taxonomy
	if taxonomy == "" {
		if err, term := t.store.ReadTermById(t.termId); err == nil && term != nil {
			taxonomy = term.Taxonomy
			t.taxonomy = taxonomy
		}
	}
	if taxonomy == "" {
		taxonomy = "category"
	}
	return termIRI(t.conf.Conf.Domain, taxonomy, t.termId)
}

func (t *TermTransformer) ToTombstone() *domain.Object {
	return domain.Tombstone(t.ToID())
}
