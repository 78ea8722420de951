package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"x-intel/internal/domain"
)

const (
	minClusterSize   = 3
	minDistinctUsers = 3
	burstWindow      = 45 * 60 // секунд
	mergeOverlap     = 0.5
	maxSharedEntity  = 8
	maxSimilarityPairs = 50
	maxTopAccounts   = 3
	maxTopPosts      = 3
)

// FindClusters ищет кластеры скоординированной активности. Вторым
// значением возвращает принадлежность аккаунтов кластерам — включая
// кластеры, отсеянные при скоринге: участие в кандидате само по себе
// значимо для бот-оценки и модулярности.
func FindClusters(posts []domain.Post) ([]domain.CoordinatedCluster, domain.AccountMembership) {
	membership := make(domain.AccountMembership)
	working := toWorkingPosts(posts)
	if len(working) < minClusterSize {
		return nil, membership
	}

	postMap := make(map[string]workingPost, len(working))
	hashtagGroups := newOrderedGroups()
	urlGroups := newOrderedGroups()
	textGroups := newOrderedGroups()
	for _, item := range working {
		postMap[item.post.TweetID] = item
		for _, hashtag := range item.post.Hashtags {
			hashtagGroups.add(hashtag, item.post.TweetID)
		}
		for _, rawURL := range item.post.URLs {
			urlGroups.add(CanonicalURL(rawURL), item.post.TweetID)
		}
		if item.normalized != "" {
			textGroups.add(item.normalized, item.post.TweetID)
		}
	}

	var candidates [][]string
	candidates = append(candidates, groupCandidates(postMap, hashtagGroups)...)
	candidates = append(candidates, groupCandidates(postMap, urlGroups)...)
	candidates = append(candidates, groupCandidates(postMap, textGroups)...)
	candidates = append(candidates, burstCandidates(working)...)

	mergedSets := mergeCandidateSets(candidates)

	clusters := make([]domain.CoordinatedCluster, 0, len(mergedSets))
	for index, tweetIDs := range mergedSets {
		clusterPosts := make([]workingPost, 0, len(tweetIDs))
		for _, tweetID := range tweetIDs {
			if item, ok := postMap[tweetID]; ok {
				clusterPosts = append(clusterPosts, item)
			}
		}
		if len(clusterPosts) < minClusterSize {
			continue
		}
		sort.SliceStable(clusterPosts, func(i, j int) bool {
			return clusterPosts[i].createdAt.Before(clusterPosts[j].createdAt)
		})

		clusterID := fmt.Sprintf("cluster-%d", index+1)
		for _, item := range clusterPosts {
			membership.Add(lowerHandle(item.post), clusterID)
		}

		if cluster, ok := buildCluster(clusterID, clusterPosts, membership); ok {
			clusters = append(clusters, cluster)
		}
	}
	return clusters, membership
}

// orderedGroups — группировка id постов по ключу с сохранением порядка
// первого появления; карта дала бы недетерминированный обход.
type orderedGroups struct {
	keys    []string
	members map[string][]string
	seen    map[string]map[string]bool
}

func newOrderedGroups() *orderedGroups {
	return &orderedGroups{
		members: make(map[string][]string),
		seen:    make(map[string]map[string]bool),
	}
}

func (g *orderedGroups) add(key, tweetID string) {
	if g.seen[key] == nil {
		g.keys = append(g.keys, key)
		g.seen[key] = make(map[string]bool)
	}
	if g.seen[key][tweetID] {
		return
	}
	g.seen[key][tweetID] = true
	g.members[key] = append(g.members[key], tweetID)
}

// groupCandidates оставляет группы с ≥3 постами от ≥3 разных авторов.
func groupCandidates(postMap map[string]workingPost, groups *orderedGroups) [][]string {
	var candidates [][]string
	for _, key := range groups.keys {
		tweetIDs := groups.members[key]
		if len(tweetIDs) < minClusterSize {
			continue
		}
		if distinctAuthors(postMap, tweetIDs) < minDistinctUsers {
			continue
		}
		candidates = append(candidates, append([]string(nil), tweetIDs...))
	}
	return candidates
}

// burstCandidates двигает 45-минутное окно по отсортированным во времени
// постам; окно с ≥4 постами от ≥3 авторов становится кандидатом.
func burstCandidates(working []workingPost) [][]string {
	if len(working) < 4 {
		return nil
	}
	sorted := append([]workingPost(nil), working...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].createdAt.Before(sorted[j].createdAt)
	})

	var candidates [][]string
	left := 0
	for right := range sorted {
		for sorted[right].createdAt.Sub(sorted[left].createdAt).Seconds() > burstWindow {
			left++
		}
		window := sorted[left : right+1]
		if len(window) < 4 {
			continue
		}
		authors := make(map[string]bool)
		for _, item := range window {
			authors[lowerHandle(item.post)] = true
		}
		if len(authors) < minDistinctUsers {
			continue
		}
		ids := make([]string, 0, len(window))
		for _, item := range window {
			ids = append(ids, item.post.TweetID)
		}
		candidates = append(candidates, ids)
	}
	return candidates
}

// mergeCandidateSets сливает кандидаты до неподвижной точки: два набора
// объединяются, если |A∩B| / min(|A|,|B|) ≥ 0.5. Раунд строит
// систему непересекающихся множеств по индексам наборов, затем
// схлопывает классы; процесс идемпотентен — повторный запуск на
// собственном результате ничего не меняет.
func mergeCandidateSets(candidates [][]string) [][]string {
	type idSet struct {
		order []string
		has   map[string]bool
	}
	sets := make([]idSet, 0, len(candidates))
	for _, candidate := range candidates {
		if len(candidate) < minClusterSize {
			continue
		}
		set := idSet{has: make(map[string]bool, len(candidate))}
		for _, id := range candidate {
			if !set.has[id] {
				set.has[id] = true
				set.order = append(set.order, id)
			}
		}
		sets = append(sets, set)
	}

	overlapRatio := func(a, b idSet) float64 {
		smaller, larger := a, b
		if len(larger.has) < len(smaller.has) {
			smaller, larger = larger, smaller
		}
		if len(smaller.has) == 0 {
			return 0
		}
		overlap := 0
		for id := range smaller.has {
			if larger.has[id] {
				overlap++
			}
		}
		return float64(overlap) / float64(len(smaller.has))
	}

	for {
		dsu := newDisjointSet(len(sets))
		merged := false
		for i := 0; i < len(sets); i++ {
			for j := i + 1; j < len(sets); j++ {
				if dsu.find(i) == dsu.find(j) {
					continue
				}
				if overlapRatio(sets[i], sets[j]) >= mergeOverlap {
					dsu.union(i, j)
					merged = true
				}
			}
		}
		if !merged {
			break
		}

		grouped := make(map[int]idSet)
		var rootOrder []int
		for i, set := range sets {
			root := dsu.find(i)
			target, ok := grouped[root]
			if !ok {
				target = idSet{has: make(map[string]bool)}
				rootOrder = append(rootOrder, root)
			}
			for _, id := range set.order {
				if !target.has[id] {
					target.has[id] = true
					target.order = append(target.order, id)
				}
			}
			grouped[root] = target
		}
		sets = sets[:0]
		for _, root := range rootOrder {
			sets = append(sets, grouped[root])
		}
	}

	result := make([][]string, 0, len(sets))
	for _, set := range sets {
		if len(set.order) >= minClusterSize {
			result = append(result, set.order)
		}
	}
	return result
}

// disjointSet — система непересекающихся множеств по индексам кандидатов.
type disjointSet struct {
	parent []int
}

func newDisjointSet(size int) *disjointSet {
	parent := make([]int, size)
	for i := range parent {
		parent[i] = i
	}
	return &disjointSet{parent: parent}
}

func (d *disjointSet) find(i int) int {
	for d.parent[i] != i {
		d.parent[i] = d.parent[d.parent[i]]
		i = d.parent[i]
	}
	return i
}

func (d *disjointSet) union(i, j int) {
	ri, rj := d.find(i), d.find(j)
	if ri != rj {
		if rj < ri {
			ri, rj = rj, ri
		}
		d.parent[rj] = ri
	}
}

// buildCluster скорит слитый набор и отбрасывает шумовые кластеры.
func buildCluster(clusterID string, posts []workingPost, membership domain.AccountMembership) (domain.CoordinatedCluster, bool) {
	if len(posts) < minClusterSize {
		return domain.CoordinatedCluster{}, false
	}

	hashtags := newOrderedCounter()
	urls := newOrderedCounter()
	for _, item := range posts {
		for _, tag := range item.post.Hashtags {
			hashtags.add(tag)
		}
		for _, rawURL := range item.post.URLs {
			urls.add(CanonicalURL(rawURL))
		}
	}
	sharedHashtags := hashtags.withCountAtLeast(2, maxSharedEntity)
	sharedURLs := urls.withCountAtLeast(2, maxSharedEntity)

	similarity := textSimilarity(posts)
	burst := burstScore(posts)

	if len(sharedHashtags) == 0 && len(sharedURLs) == 0 && similarity < 0.65 {
		return domain.CoordinatedCluster{}, false
	}
	// Большие рыхлые кластеры без общих сущностей и всплеска — шум.
	if len(posts) > 25 && similarity < 0.1 && burst < 0.25 {
		return domain.CoordinatedCluster{}, false
	}

	return domain.CoordinatedCluster{
		ClusterID:           clusterID,
		Size:                len(posts),
		SharedHashtags:      sharedHashtags,
		SharedURLs:          sharedURLs,
		TimeBurstScore:      burst,
		TextSimilarityScore: similarity,
		TopAccounts:         assignRoles(posts, membership),
		TopPosts:            representativePosts(posts),
	}, true
}

// assignRoles: самый ранний автор — seed; самый активный из состоящих
// в других кластерах — bridge; остальные по частоте — amplifier.
func assignRoles(posts []workingPost, membership domain.AccountMembership) []domain.ClusterAccount {
	earliest := lowerHandle(posts[0].post)

	authorCounts := newOrderedCounter()
	for _, item := range posts {
		authorCounts.add(lowerHandle(item.post))
	}
	common := authorCounts.mostCommon()

	bridge := ""
	for _, handle := range common {
		if handle != earliest && membership.Count(handle) > 1 {
			bridge = handle
			break
		}
	}

	selected := []string{earliest}
	if bridge != "" {
		selected = append(selected, bridge)
	}
	for _, handle := range common {
		if len(selected) >= maxTopAccounts {
			break
		}
		if !containsString(selected, handle) {
			selected = append(selected, handle)
		}
	}

	accounts := make([]domain.ClusterAccount, 0, maxTopAccounts)
	for _, handle := range selected {
		if len(accounts) >= maxTopAccounts {
			break
		}
		role := domain.RoleAmplifier
		switch handle {
		case earliest:
			role = domain.RoleSeed
		case bridge:
			role = domain.RoleBridge
		}
		for _, item := range posts {
			if lowerHandle(item.post) == handle {
				accounts = append(accounts, domain.ClusterAccount{
					UserID:   item.post.Author.UserID,
					Handle:   item.post.Author.Handle,
					RoleHint: role,
				})
				break
			}
		}
	}
	return accounts
}

// representativePosts возвращает топ-3 поста по вовлечённости.
func representativePosts(posts []workingPost) []domain.ClusterPost {
	ranked := append([]workingPost(nil), posts...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return engagement(ranked[i].post) > engagement(ranked[j].post)
	})
	if len(ranked) > maxTopPosts {
		ranked = ranked[:maxTopPosts]
	}

	top := make([]domain.ClusterPost, 0, len(ranked))
	for _, item := range ranked {
		top = append(top, domain.ClusterPost{
			TweetID:   item.post.TweetID,
			Text:      truncateRunes(item.post.Text, 280),
			CreatedAt: item.post.CreatedAt,
			URLs:      item.post.URLs,
			Hashtags:  item.post.Hashtags,
			Mentions:  item.post.Mentions,
		})
	}
	return top
}

// textSimilarity — средний Жаккар по ≤50 парам постов кластера.
func textSimilarity(posts []workingPost) float64 {
	if len(posts) < 2 {
		return 0
	}
	sum := 0.0
	samples := 0
	for i := 0; i < len(posts) && samples < maxSimilarityPairs; i++ {
		for j := i + 1; j < len(posts) && samples < maxSimilarityPairs; j++ {
			if len(posts[i].tokens) == 0 || len(posts[j].tokens) == 0 {
				continue
			}
			sum += Jaccard(posts[i].tokens, posts[j].tokens)
			samples++
		}
	}
	if samples == 0 {
		return 0
	}
	return round3(sum / float64(samples))
}

// burstScore: 1 − min(span/expected, 1), где ожидаемый размах —
// 15 минут на пост, минимум 15 минут.
func burstScore(posts []workingPost) float64 {
	if len(posts) < 2 {
		return 0
	}
	span := posts[len(posts)-1].createdAt.Sub(posts[0].createdAt).Seconds()
	if span < 1 {
		span = 1
	}
	expected := 900.0 * float64(len(posts))
	if expected < 900 {
		expected = 900
	}
	burst := 1 - math.Min(span/expected, 1)
	if burst < 0 {
		burst = 0
	}
	return round3(burst)
}

func distinctAuthors(postMap map[string]workingPost, tweetIDs []string) int {
	authors := make(map[string]bool)
	for _, tweetID := range tweetIDs {
		if item, ok := postMap[tweetID]; ok {
			authors[lowerHandle(item.post)] = true
		}
	}
	return len(authors)
}

func engagement(post domain.Post) int {
	return post.Metrics.Likes + post.Metrics.Reposts + post.Metrics.Replies
}

func lowerHandle(post domain.Post) string {
	return strings.ToLower(post.Author.Handle)
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// orderedCounter считает вхождения, сохраняя порядок первого появления.
type orderedCounter struct {
	keys   []string
	counts map[string]int
}

func newOrderedCounter() *orderedCounter {
	return &orderedCounter{counts: make(map[string]int)}
}

func (c *orderedCounter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.counts[key]++
}

// mostCommon возвращает ключи по убыванию счётчика; при равенстве
// порядок первого появления.
func (c *orderedCounter) mostCommon() []string {
	ordered := append([]string(nil), c.keys...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return c.counts[ordered[i]] > c.counts[ordered[j]]
	})
	return ordered
}

func (c *orderedCounter) withCountAtLeast(threshold, limit int) []string {
	var result []string
	for _, key := range c.keys {
		if c.counts[key] >= threshold {
			result = append(result, key)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}
