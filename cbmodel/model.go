//Package cbmodel decodes CatBoost JSON model dumps into materialized
//oblivious trees. It covers the dump written by save_model(..., "json"):
//ensemble metadata under model_info and one compact oblivious tree per
//entry of oblivious_trees. Vendor runtime concerns - observation routing,
//raw predictions, categorical/CTR encoding - stay with the vendor.
package cbmodel

//rawModel mirrors the top level of a CatBoost JSON dump. Only the fields
//this package consumes are declared; the rest of the dump is skipped by
//the decoder.
type rawModel struct {
	ModelInfo      rawModelInfo    `json:"model_info"`
	ObliviousTrees []rawTree       `json:"oblivious_trees"`
	FeaturesInfo   rawFeaturesInfo `json:"features_info"`
}

type rawModelInfo struct {
	Params rawParams `json:"params"`
}

type rawParams struct {
	LossFunction       rawLossFunction       `json:"loss_function"`
	TreeLearnerOptions rawTreeLearnerOptions `json:"tree_learner_options"`
}

type rawLossFunction struct {
	Type string `json:"type"`
}

type rawTreeLearnerOptions struct {
	Depth int `json:"depth"`
}

//rawTree is one serialized oblivious tree. leaf_values is flat with
//nLeaves*nClass entries, leaf-major; splits run from the level adjacent to
//the leaves up to the root.
type rawTree struct {
	LeafValues  []float64  `json:"leaf_values"`
	LeafWeights []float64  `json:"leaf_weights"`
	Splits      []rawSplit `json:"splits"`
}

//rawSplit carries the union of the fields the three split types use;
//pointers distinguish absent fields from zero values.
type rawSplit struct {
	SplitType          string   `json:"split_type"`
	FloatFeatureIndex  *int     `json:"float_feature_index"`
	CatFeatureIndex    *int     `json:"cat_feature_index"`
	CtrTargetBorderIdx *int     `json:"ctr_target_border_idx"`
	Border             *float64 `json:"border"`
	Value              *float64 `json:"value"`
}

type rawFeaturesInfo struct {
	FloatFeatures []rawFloatFeature `json:"float_features"`
}

type rawFloatFeature struct {
	FlatFeatureIndex int    `json:"flat_feature_index"`
	FeatureID        string `json:"feature_id"`
}
