package format

// blobNames maps PS4 blob ids to their conventional file names. Ids that are
// known but unnamed (sbram, watermark, update slots) are left out.
var blobNames = map[uint32]string{
	0x001: "emc_ipl.slb",
	0x002: "eap_kbl.slb",
	0x003: "torus2_fw.slb",
	0x004: "sam_ipl.slb",
	0x005: "coreos.slb",
	0x006: "system_exfat.img",
	0x007: "eap_kernel.slb",
	0x008: "eap_vsh_fat16.img",
	0x009: "preinst_fat32.img",
	0x00B: "preinst2_fat32.img",
	0x00C: "system_ex_exfat.img",
	0x00D: "emc_ipl.slb",
	0x00E: "eap_kbl.slb",
	0x020: "emc_ipl.slb",
	0x021: "eap_kbl.slb",
	0x022: "torus2_fw.slb",
	0x023: "sam_ipl.slb",
	0x024: "emc_ipl.slb",
	0x025: "eap_kbl.slb",
	0x026: "sam_ipl.slb",
	0x027: "sam_ipl.slb",
	0x028: "emc_ipl.slb",
	0x02A: "emc_ipl.slb",
	0x02B: "eap_kbl.slb",
	0x02C: "emc_ipl.slb",
	0x02D: "sam_ipl.slb",
	0x02E: "emc_ipl.slb",
	0x030: "torus2_fw.bin",
	0x031: "sam_ipl.slb",
	0x032: "sam_ipl.slb",
	0x101: "eula.xml",
	0x200: "orbis_swu.elf",
	0x202: "orbis_swu.self",
	0xD01: "bd_firm.slb",
	0xD02: "sata_bridge_fw.slb",
	0xD09: "cp_fw_kernel.slb",
}

// BlobName returns the conventional name for a PS4 blob id, or "" if the id
// has none.
func BlobName(id uint32) string {
	return blobNames[id]
}
