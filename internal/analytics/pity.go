// Package analytics 保底计数、平均出货抽数与歪率等纯计算，不访问存储。
package analytics

import "GachaSync/internal/model"

// 参与统计的星级范围
const (
	MinRarity = 3
	MaxRarity = 6
)

// Rarities 从高到低
var Rarities = []int{6, 5, 4, 3}

// PityCounter 单个保底分组内各星级的计数器。
// 每抽使所有星级计数加一；抽到某星级时记录该星级当前计数并清零。
type PityCounter struct {
	count [MaxRarity + 1]int
	hits  [MaxRarity + 1][]int
}

func validRarity(r int) bool { return r >= MinRarity && r <= MaxRarity }

// Add 记录一抽，返回该抽对应星级的保底计数（距上一次同星级的抽数，含本抽）
func (p *PityCounter) Add(rarity int) int {
	for r := MinRarity; r <= MaxRarity; r++ {
		p.count[r]++
	}
	if !validRarity(rarity) {
		return 0
	}
	n := p.count[rarity]
	p.hits[rarity] = append(p.hits[rarity], n)
	p.count[rarity] = 0
	return n
}

// Hits 已完成的保底计数
func (p *PityCounter) Hits(rarity int) []int {
	if !validRarity(rarity) {
		return nil
	}
	return p.hits[rarity]
}

// Trailing 尚未出货的累计抽数
func (p *PityCounter) Trailing(rarity int) int {
	if !validRarity(rarity) {
		return 0
	}
	return p.count[rarity]
}

// Progress 各星级未出货的累计抽数
func (p *PityCounter) Progress() map[int]int {
	out := make(map[int]int, len(Rarities))
	for _, r := range Rarities {
		out[r] = p.count[r]
	}
	return out
}

// AverageCompleted 只统计已完成的保底：sum(hits)/len(hits)，未出货的尾段不计入。无出货为0。
func AverageCompleted(counters ...*PityCounter) map[int]float64 {
	out := make(map[int]float64, len(Rarities))
	for _, r := range Rarities {
		sum, n := 0, 0
		for _, c := range counters {
			for _, v := range c.Hits(r) {
				sum += v
				n++
			}
		}
		out[r] = ratio(sum, n)
	}
	return out
}

// AverageWithTrailing 单卡池视图：尾段计入分子不计入分母。无出货为0。
func AverageWithTrailing(c *PityCounter) map[int]float64 {
	out := make(map[int]float64, len(Rarities))
	for _, r := range Rarities {
		hits := c.Hits(r)
		if len(hits) == 0 {
			out[r] = 0
			continue
		}
		sum := c.Trailing(r)
		for _, v := range hits {
			sum += v
		}
		out[r] = ratio(sum, len(hits))
	}
	return out
}

// UpTally 六星歪率计数，未知状态不计入
type UpTally struct {
	Six   int `json:"six"`
	NotUp int `json:"not_up"`
}

// Add 记录一个六星的UP状态
func (u *UpTally) Add(up model.UpState) {
	if !up.Known() {
		return
	}
	u.Six++
	if up == model.UpNo {
		u.NotUp++
	}
}

// Merge 合并计数
func (u *UpTally) Merge(o UpTally) {
	u.Six += o.Six
	u.NotUp += o.NotUp
}

// Rate 歪率 = 歪的六星数 / 已知UP状态的六星数
func (u UpTally) Rate() float64 {
	return ratio(u.NotUp, u.Six)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
