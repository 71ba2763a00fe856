package models

// Loop describes the membership and iteration settings of a loop
// container block. The ID always equals the id of a block whose type is
// "loop"; every member's ParentID points back at the container.
type Loop struct {
	ID           string   `json:"id"                       yaml:"id"`
	Nodes        []string `json:"nodes"                    yaml:"nodes"`
	Iterations   int      `json:"iterations,omitempty"     yaml:"iterations,omitempty"`
	LoopType     string   `json:"loop_type,omitempty"      yaml:"loop_type,omitempty"` // "for" or "forEach"
	ForEachItems any      `json:"for_each_items,omitempty" yaml:"for_each_items,omitempty"`
}

// Parallel describes the membership and fan-out settings of a parallel
// container block.
type Parallel struct {
	ID           string   `json:"id"                      yaml:"id"`
	Nodes        []string `json:"nodes"                   yaml:"nodes"`
	Count        int      `json:"count,omitempty"         yaml:"count,omitempty"`
	Distribution any      `json:"distribution,omitempty"  yaml:"distribution,omitempty"`
	ParallelType string   `json:"parallel_type,omitempty" yaml:"parallel_type,omitempty"`
}
