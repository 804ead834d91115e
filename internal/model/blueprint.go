package model

// Blueprint is one entry of the external cross-reference catalog. The
// CardMarketIDs array is the join key back to Product.IDProduct.
type Blueprint struct {
	ID              int            `bson:"id"`
	Name            string         `bson:"name"`
	Version         string         `bson:"version,omitempty"`
	GameID          int            `bson:"game_id,omitempty"`
	ExpansionID     int            `bson:"expansion_id"`
	CardMarketIDs   []int          `bson:"card_market_ids,omitempty"`
	TCGPlayerID     int            `bson:"tcg_player_id,omitempty"`
	FixedProperties map[string]any `bson:"fixed_properties,omitempty"`
	BigImage        string         `bson:"big_image,omitempty"`
	SmallImage      string         `bson:"small_image,omitempty"`
}

// Expansion is one known card set, used to page the cross-reference export
type Expansion struct {
	ID   int    `bson:"id"`
	Name string `bson:"name,omitempty"`
	Code string `bson:"code,omitempty"`
}
