package views

import (
	"github.com/CrowderSoup/workboard/grouping"
	"github.com/CrowderSoup/workboard/models"
)

// Impact lists the groups a card event invalidates, in partition order.
// Repartition is set when the event produced a value no group exists for
// yet, so the partition itself is stale. Session.Apply also sets it when a
// group lost its last card.
type Impact struct {
	Keys        []string `json:"keys"`
	Repartition bool     `json:"repartition"`
}

// Affected computes which groups of defs a card event touches. current is
// the card as it is now in the list, or nil when it is gone.
//
// A stage or grouping-field change touches at most the prior and the new
// group; an in-place update touches exactly the card's group.
func Affected(defs []grouping.Definition, by models.GroupBy, ev models.CardEvent, current *models.ListCard) Impact {
	if len(defs) == 0 {
		return Impact{Repartition: true}
	}

	im := &impactBuilder{defs: defs}
	switch by.Normalized().Type {
	case models.GroupAll:
		im.add(defs[0].Key)
	case models.GroupStage:
		im.stageEvent(ev, current)
	case models.GroupField:
		im.fieldEvent(by.FieldID, ev, current)
	default:
		im.repartition = true
	}
	return im.impact()
}

type impactBuilder struct {
	defs        []grouping.Definition
	keys        []string
	repartition bool
}

func (b *impactBuilder) add(key string) {
	if _, ok := grouping.Find(b.defs, key); !ok {
		b.repartition = true
		return
	}
	for _, k := range b.keys {
		if k == key {
			return
		}
	}
	b.keys = append(b.keys, key)
}

func (b *impactBuilder) locate(lc models.ListCard) {
	d, ok := grouping.Locate(b.defs, lc)
	if !ok {
		b.repartition = true
		return
	}
	b.add(d.Key)
}

func (b *impactBuilder) stageEvent(ev models.CardEvent, current *models.ListCard) {
	switch ev.Kind {
	case models.CardCreated:
		if current != nil {
			b.add(grouping.StageKey(current.Membership.StageID))
		} else {
			b.add(grouping.StageKey(ev.AfterStageID))
		}
	case models.CardDeleted:
		if ev.BeforeStageID == nil && current != nil {
			b.add(grouping.StageKey(current.Membership.StageID))
		} else {
			b.add(grouping.StageKey(ev.BeforeStageID))
		}
	case models.CardMovedStage:
		b.add(grouping.StageKey(ev.BeforeStageID))
		b.add(grouping.StageKey(ev.AfterStageID))
	default:
		if current != nil {
			b.locate(*current)
		} else if ev.AfterStageID != nil {
			b.add(grouping.StageKey(ev.AfterStageID))
		} else {
			b.repartition = true
		}
	}
}

func (b *impactBuilder) fieldEvent(fieldID string, ev models.CardEvent, current *models.ListCard) {
	if ev.FieldID != fieldID || ev.Kind == models.CardMovedStage {
		if current != nil {
			b.locate(*current)
		} else {
			b.repartition = true
		}
		return
	}

	switch ev.Kind {
	case models.CardCreated:
		b.value(fieldID, ev.AfterFieldValue)
	case models.CardDeleted:
		b.value(fieldID, ev.BeforeFieldValue)
	default:
		b.value(fieldID, ev.BeforeFieldValue)
		b.value(fieldID, ev.AfterFieldValue)
	}
}

// value adds the group a card holding raw for fieldID would belong to.
func (b *impactBuilder) value(fieldID string, raw any) {
	known := make(map[string]bool, len(b.defs))
	hasNone := false
	for _, d := range b.defs {
		if d.NoValue {
			hasNone = true
			continue
		}
		known[d.EntityID] = true
	}
	// Every groupable field type decodes to a set of ids.
	v, err := models.DecodeValue(models.Field{ID: fieldID, Type: models.FieldLabel}, raw)
	if err != nil {
		b.repartition = true
		return
	}
	set, _ := v.(models.SetValue)
	for _, id := range set.IDs {
		if !known[id] {
			b.repartition = true
			return
		}
	}
	if len(set.IDs) == 0 && !hasNone {
		b.repartition = true
		return
	}

	b.locate(models.ListCard{Card: models.Card{Values: map[string]any{fieldID: raw}}})
}

func (b *impactBuilder) impact() Impact {
	im := Impact{Repartition: b.repartition, Keys: []string{}}
	for _, d := range b.defs {
		for _, k := range b.keys {
			if k == d.Key {
				im.Keys = append(im.Keys, k)
			}
		}
	}
	return im
}
