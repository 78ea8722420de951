package analysis

import (
	"sort"
	"strings"

	"x-intel/internal/domain"
)

const maxCentralAccounts = 10

type graphEdge struct{ from, to string }

// BuildGraphMetrics строит граф усиления: вершины — авторы, рёбра —
// упоминания, ответы и цитаты. Возвращает плотность, топ центральных
// аккаунтов и прокси модулярности по принадлежности кластерам.
func BuildGraphMetrics(posts []domain.Post, membership domain.AccountMembership) domain.GraphMetrics {
	var nodeOrder []string
	nodes := make(map[string]bool)
	addNode := func(handle string) {
		if handle == "" || nodes[handle] {
			return
		}
		nodes[handle] = true
		nodeOrder = append(nodeOrder, handle)
	}

	replyAuthors := make(map[string]string, len(posts))
	for _, post := range posts {
		replyAuthors[post.TweetID] = strings.ToLower(post.Author.Handle)
	}

	edges := make(map[graphEdge]bool)
	inDegree := make(map[string]int)
	outDegree := make(map[string]int)
	addEdge := func(from, to string) {
		if from == "" || to == "" || from == to {
			return
		}
		addNode(from)
		addNode(to)
		key := graphEdge{from: from, to: to}
		if edges[key] {
			return
		}
		edges[key] = true
		outDegree[from]++
		inDegree[to]++
	}

	for _, post := range posts {
		author := strings.ToLower(post.Author.Handle)
		addNode(author)
		for _, mention := range post.Mentions {
			addEdge(author, strings.ToLower(mention))
		}
		for _, ref := range []string{post.ReplyTo, post.QuotedTweetID} {
			if ref == "" {
				continue
			}
			if target, ok := replyAuthors[ref]; ok {
				addEdge(author, target)
			}
		}
	}

	nodeCount := len(nodeOrder)
	var metrics domain.GraphMetrics
	if nodeCount < 2 {
		return metrics
	}

	possible := float64(nodeCount) * float64(nodeCount-1)
	metrics.Density = round3(float64(len(edges)) / possible)

	// Степенная центральность: (in + out) / (2 · (n − 1)).
	denom := 2 * float64(nodeCount-1)
	central := make([]domain.CentralAccount, 0, nodeCount)
	for _, handle := range nodeOrder {
		central = append(central, domain.CentralAccount{
			Handle: handle,
			Score:  round3(float64(inDegree[handle]+outDegree[handle]) / denom),
		})
	}
	sort.SliceStable(central, func(i, j int) bool {
		return central[i].Score > central[j].Score
	})
	if len(central) > maxCentralAccounts {
		central = central[:maxCentralAccounts]
	}
	metrics.CentralAccounts = central

	metrics.Modularity = modularityProxy(edges, membership)
	return metrics
}

// modularityProxy — доля рёбер внутри одного кластера среди рёбер,
// у которых оба конца состоят хотя бы в одном кластере.
func modularityProxy(edges map[graphEdge]bool, membership domain.AccountMembership) float64 {
	assigned := 0
	intra := 0
	for edge := range edges {
		if membership.Count(edge.from) == 0 || membership.Count(edge.to) == 0 {
			continue
		}
		assigned++
		if membership.Shares(edge.from, edge.to) {
			intra++
		}
	}
	if assigned == 0 {
		return 0
	}
	return round3(float64(intra) / float64(assigned))
}
