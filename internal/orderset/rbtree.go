// Package orderset implements the six price-indexed ordered sets that
// back the Materializer: {open, close, liquidation} x {long, short}.
// Each is a red-black tree keyed by fixed-point score (domain.PriceScale),
// with every price bucket holding the set of order ids at that score —
// generalized from the teacher's internal/orderbook, which kept exactly
// one order-matching price level (a FIFO queue) per tree node. Here a
// node holds a bucket of ids because liquidation/open/close membership
// doesn't need time priority, only price-ordered bulk range removal.
package orderset

// color and the red-black invariants below are unchanged from the
// teacher's internal/orderbook/rbtree.go; only the payload at each
// node differs (a bucket of order ids instead of a FIFO order queue).
type color bool

const (
	red   color = true
	black color = false
)

type rbNode struct {
	score  int64
	bucket map[string]struct{}
	color  color
	left   *rbNode
	right  *rbNode
	parent *rbNode
}

// rbTree is a red-black tree keyed by fixed-point score.
type rbTree struct {
	root    *rbNode
	size    int
	minNode *rbNode
	maxNode *rbNode
}

func newRBTree() *rbTree {
	return &rbTree{}
}

func (t *rbTree) Size() int { return t.size }

func (t *rbTree) search(score int64) *rbNode {
	current := t.root
	for current != nil {
		if score < current.score {
			current = current.left
		} else if score > current.score {
			current = current.right
		} else {
			return current
		}
	}
	return nil
}

// getOrCreate returns the node at score, creating and rebalancing a
// new one if absent.
func (t *rbTree) getOrCreate(score int64) *rbNode {
	if existing := t.search(score); existing != nil {
		return existing
	}

	newNode := &rbNode{score: score, bucket: make(map[string]struct{}), color: red}

	if t.root == nil {
		newNode.color = black
		t.root = newNode
		t.minNode = newNode
		t.maxNode = newNode
		t.size = 1
		return newNode
	}

	var parent *rbNode
	current := t.root
	for current != nil {
		parent = current
		if score < current.score {
			current = current.left
		} else {
			current = current.right
		}
	}

	newNode.parent = parent
	if score < parent.score {
		parent.left = newNode
	} else {
		parent.right = newNode
	}
	t.size++

	if t.minNode == nil || score < t.minNode.score {
		t.minNode = newNode
	}
	if t.maxNode == nil || score > t.maxNode.score {
		t.maxNode = newNode
	}

	t.insertFixup(newNode)
	return newNode
}

// deleteIfEmpty removes a node once its bucket is empty.
func (t *rbTree) deleteIfEmpty(node *rbNode) {
	if node == nil || len(node.bucket) > 0 {
		return
	}
	t.size--
	if node == t.minNode {
		t.minNode = t.successor(node)
	}
	if node == t.maxNode {
		t.maxNode = t.predecessor(node)
	}
	t.deleteNode(node)
}

func (t *rbTree) successor(node *rbNode) *rbNode {
	if node.right != nil {
		current := node.right
		for current.left != nil {
			current = current.left
		}
		return current
	}
	parent := node.parent
	for parent != nil && node == parent.right {
		node = parent
		parent = parent.parent
	}
	return parent
}

func (t *rbTree) predecessor(node *rbNode) *rbNode {
	if node.left != nil {
		current := node.left
		for current.right != nil {
			current = current.right
		}
		return current
	}
	parent := node.parent
	for parent != nil && node == parent.left {
		node = parent
		parent = parent.parent
	}
	return parent
}

func (t *rbTree) rotateLeft(x *rbNode) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *rbTree) rotateRight(x *rbNode) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		t.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (t *rbTree) insertFixup(z *rbNode) {
	for z.parent != nil && z.parent.color == red {
		if z.parent == z.parent.parent.left {
			y := z.parent.parent.right
			if y != nil && y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.right {
					z = z.parent
					t.rotateLeft(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rotateRight(z.parent.parent)
			}
		} else {
			y := z.parent.parent.left
			if y != nil && y.color == red {
				z.parent.color = black
				y.color = black
				z.parent.parent.color = red
				z = z.parent.parent
			} else {
				if z == z.parent.left {
					z = z.parent
					t.rotateRight(z)
				}
				z.parent.color = black
				z.parent.parent.color = red
				t.rotateLeft(z.parent.parent)
			}
		}
	}
	t.root.color = black
}

func (t *rbTree) transplant(u, v *rbNode) {
	if u.parent == nil {
		t.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

func (t *rbTree) deleteNode(z *rbNode) {
	var x, xParent *rbNode
	y := z
	yOriginalColor := y.color

	if z.left == nil {
		x = z.right
		xParent = z.parent
		t.transplant(z, z.right)
	} else if z.right == nil {
		x = z.left
		xParent = z.parent
		t.transplant(z, z.left)
	} else {
		y = z.right
		for y.left != nil {
			y = y.left
		}
		yOriginalColor = y.color
		x = y.right
		if y.parent == z {
			xParent = y
		} else {
			xParent = y.parent
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if yOriginalColor == black {
		t.deleteFixup(x, xParent)
	}
}

func (t *rbTree) deleteFixup(x *rbNode, xParent *rbNode) {
	for x != t.root && (x == nil || x.color == black) {
		if x == xParent.left {
			w := xParent.right
			if w != nil && w.color == red {
				w.color = black
				xParent.color = red
				t.rotateLeft(xParent)
				w = xParent.right
			}
			if w == nil || ((w.left == nil || w.left.color == black) && (w.right == nil || w.right.color == black)) {
				if w != nil {
					w.color = red
				}
				x = xParent
				xParent = x.parent
			} else {
				if w.right == nil || w.right.color == black {
					if w.left != nil {
						w.left.color = black
					}
					w.color = red
					t.rotateRight(w)
					w = xParent.right
				}
				w.color = xParent.color
				xParent.color = black
				if w.right != nil {
					w.right.color = black
				}
				t.rotateLeft(xParent)
				x = t.root
			}
		} else {
			w := xParent.left
			if w != nil && w.color == red {
				w.color = black
				xParent.color = red
				t.rotateRight(xParent)
				w = xParent.left
			}
			if w == nil || ((w.right == nil || w.right.color == black) && (w.left == nil || w.left.color == black)) {
				if w != nil {
					w.color = red
				}
				x = xParent
				xParent = x.parent
			} else {
				if w.left == nil || w.left.color == black {
					if w.right != nil {
						w.right.color = black
					}
					w.color = red
					t.rotateLeft(w)
					w = xParent.left
				}
				w.color = xParent.color
				xParent.color = black
				if w.left != nil {
					w.left.color = black
				}
				t.rotateRight(xParent)
				x = t.root
			}
		}
	}
	if x != nil {
		x.color = black
	}
}
