package mozscape

import "context"

// GetFreeStats 查询免费档的全部列，返回整条记录。
func (c *Client) GetFreeStats(ctx context.Context, target Target) (Result[MetricRecord], error) {
	return c.GetURLMetrics(ctx, target, FreeStatsCols)
}

// GetDomainAuthority 只取 pda，单目标时 Single 直接得到数值。
func (c *Client) GetDomainAuthority(ctx context.Context, target Target) (Result[float64], error) {
	records, err := c.FetchMetrics(ctx, target, DomainAuthorityCols)
	if err != nil {
		return Result[float64]{}, err
	}
	return DomainAuthorities(records)
}

// GetURLMetrics 自定义列。
func (c *Client) GetURLMetrics(ctx context.Context, target Target, cols Column) (Result[MetricRecord], error) {
	records, err := c.FetchMetrics(ctx, target, cols)
	if err != nil {
		return Result[MetricRecord]{}, err
	}
	return NewResult(records), nil
}
