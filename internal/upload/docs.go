package upload

import (
	"github.com/eyes-of-azrael/azrael/internal/entity"
)

// FromEntities converts entities to documents. collection resolves the
// target collection of each entity type.
func FromEntities(entities []entity.Entity, collection func(entity.Type) string) []Doc {
	docs := make([]Doc, 0, len(entities))
	for _, e := range entities {
		docs = append(docs, Doc{
			Collection: collection(e.Type),
			ID:         e.ID,
			Data:       e.Document(),
			Hash:       e.ContentHash(),
		})
	}
	return docs
}
